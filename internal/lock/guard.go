package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrBusy is returned when the guarded operation is already running for the
// same key. Callers surface it instead of queueing a duplicate.
var ErrBusy = errors.New("lock: operation already in progress")

// Guard is a Redis-backed mutual exclusion helper. Unlike a blocking lock it
// fails fast: a second submit for the same tab while one is in flight is a
// duplicate tap, not a queued request.
type Guard struct {
	R   *redis.Client
	TTL time.Duration
}

// SubmitKey scopes a submission guard to one billing target.
func SubmitKey(tabOrTableID string) string {
	return "guard:submit:" + tabOrTableID
}

// Do runs fn while holding the key. If the key is already held, ErrBusy is
// returned without invoking fn. The key is released when fn returns, and
// expires on its own if the process dies mid-flight.
func (g Guard) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if g.R == nil || key == "" {
		// Without Redis the guard degrades to a plain call.
		return fn(ctx)
	}
	ttl := g.TTL
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	token := uuid.NewString()
	ok, err := g.R.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrBusy
	}
	defer g.release(context.Background(), key, token)
	return fn(ctx)
}

func (g Guard) release(ctx context.Context, key, token string) {
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`
	if err := g.R.Eval(ctx, script, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = g.R.Del(ctx, key).Err()
		}
	}
}

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var incrScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`)

type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter is a fixed-window counter in Redis, shared by every API replica.
type Limiter struct {
	client *redis.Client
	prefix string
	window time.Duration
}

func NewLimiter(client *redis.Client, prefix string, window time.Duration) *Limiter {
	if window < time.Second {
		window = time.Second
	}
	return &Limiter{
		client: client,
		prefix: strings.TrimSpace(prefix),
		window: window,
	}
}

// Allow counts one hit for key in the window containing now.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, now time.Time) (Result, error) {
	if l == nil || l.client == nil || limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}

	windowSecs := int64(l.window / time.Second)
	slot := now.Unix() / windowSecs
	reset := time.Unix((slot+1)*windowSecs, 0).UTC()

	res, err := incrScript.Run(ctx, l.client, []string{l.buildKey(key, slot)}, windowSecs+1).Int64()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit redis: %w", err)
	}

	if res > int64(limit) {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	return Result{Allowed: true, Remaining: limit - int(res), Reset: reset}, nil
}

func (l *Limiter) buildKey(key string, slot int64) string {
	slotStr := strconv.FormatInt(slot, 10)
	if l.prefix == "" {
		return key + ":" + slotStr
	}
	return l.prefix + ":" + key + ":" + slotStr
}

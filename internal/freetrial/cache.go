package freetrial

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	policyCacheKey = "freetrial:policy:active"
	// policyGenKey is bumped on every replacement. Entries are only written
	// if it has not moved since the writer read it.
	policyGenKey = "freetrial:policy:gen"
	// noPolicyMarker caches the "quota system disabled" state.
	noPolicyMarker = "none"
)

// setIfGeneration stores ARGV[1] under KEYS[1] only while KEYS[2] still
// equals ARGV[2]. ARGV[3] is the ttl in milliseconds, 0 for none.
var setIfGeneration = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[2] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// PolicyCache keeps the active policy in Redis so status and usage requests
// do not hit Postgres for it on every call.
type PolicyCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewPolicyCache(rdb redis.Cmdable, ttl time.Duration) *PolicyCache {
	return &PolicyCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached policy and whether the cache held an entry. A hit
// with a nil policy means no policy is active.
func (c *PolicyCache) Get(ctx context.Context) (*Policy, bool, error) {
	raw, err := c.rdb.Get(ctx, policyCacheKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cached policy: %w", err)
	}
	if raw == noPolicyMarker {
		return nil, true, nil
	}

	var p Policy
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, false, fmt.Errorf("decoding cached policy: %w", err)
	}
	return &p, true, nil
}

// Generation returns the current replacement generation. Read it before
// loading the policy from the database and hand it to Set.
func (c *PolicyCache) Generation(ctx context.Context) (string, error) {
	gen, err := c.rdb.Get(ctx, policyGenKey).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading policy generation: %w", err)
	}
	return gen, nil
}

// Set caches p, or the absence of a policy when p is nil, provided no
// replacement happened since gen was read. It reports whether the entry
// was written.
func (c *PolicyCache) Set(ctx context.Context, p *Policy, gen string) (bool, error) {
	value := noPolicyMarker
	if p != nil {
		data, err := json.Marshal(p)
		if err != nil {
			return false, fmt.Errorf("encoding policy: %w", err)
		}
		value = string(data)
	}

	stored, err := setIfGeneration.Run(ctx, c.rdb,
		[]string{policyCacheKey, policyGenKey}, value, gen, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("caching policy: %w", err)
	}
	return stored == 1, nil
}

// Invalidate drops the cached entry and bumps the generation so that
// readers still holding the previous policy cannot write it back.
func (c *PolicyCache) Invalidate(ctx context.Context) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, policyGenKey)
		pipe.Del(ctx, policyCacheKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidating cached policy: %w", err)
	}
	return nil
}

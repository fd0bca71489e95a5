package locks

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Redis is a Keyed backed by redis SET NX leases, for deployments running
// more than one walletd process against the same database.
//
// The lease carries a per-acquisition token so an expired holder cannot
// release a lock that has since been granted to someone else.
type Redis struct {
	rds    *redis.Client
	prefix string
	ttl    time.Duration
}

// lease TTL guards against a crashed holder wedging the account forever
const redisLeaseTTL = 30 * time.Second

// how often a blocked acquirer retries
const redisRetryEvery = 25 * time.Millisecond

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func NewRedis(rds *redis.Client) *Redis {
	return &Redis{
		rds:    rds,
		prefix: "walletd:lock:",
		ttl:    redisLeaseTTL,
	}
}

func (r *Redis) Acquire(key string, wait time.Duration) (release func(), err error) {
	if wait <= 0 {
		wait = DefaultWait
	}

	ctx := context.Background()
	token := uuid.New().String()
	full := r.prefix + key
	deadline := time.Now().Add(wait)

	for {
		ok, err := r.rds.SetNX(ctx, full, token, r.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		time.Sleep(redisRetryEvery)
	}

	var once sync.Once
	release = func() {
		once.Do(func() {
			releaseScript.Run(ctx, r.rds, []string{full}, token)
		})
	}
	return release, nil
}

// Package redis provides the Redis connection used for offline-sync
// idempotency claims when more than one process replays scanner batches.
//
// Usage:
//
//	client, err := redis.Connect(cfg.Redis)
//	if errors.Is(err, redis.ErrDisabled) {
//	    // fall back to the in-memory claim cache
//	}
//	defer client.Close()
//
//	created, err := client.SetNX(ctx, key, "pending", 72*time.Hour)
//	if !created {
//	    value, found, err := client.Get(ctx, key)
//	}
//	err = client.SetKeepTTL(ctx, key, "applied")
package redis

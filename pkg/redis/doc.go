// Package redis connects to the Redis server that can back the persisted
// session state.
//
// Connect retries the initial ping according to Config, which is usually
// populated from the environment through pkg/config:
//
//	var cfg redis.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// Healthcheck wraps a client into a readiness check function.
// The key-value adapter lives in pkg/kv (kv.NewRedisStore).
package redis

package db

import (
	"github.com/Abhinavchoudhary2005/AlertIQ/internal/config"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns nil when no address is configured; the stream hub then
// runs single-instance.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

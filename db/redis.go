package db

import (
	"os"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to the Redis instance holding short-lived state
// (OTP codes). REDIS_URL defaults to a local instance.
func NewRedisClient() *redis.Client {
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		addr = "localhost:6379"
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
}

package database

import (
	"context"

	"github.com/go-redis/redis/v8"

	"praivio-go/internal/config"
	"praivio-go/pkg/log"
)

var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接。未配置地址时保持 RDB 为 nil。
func InitRedis(cfg config.RedisConfig) {
	if cfg.Addr == "" {
		log.Info("Redis not configured, token revocation is kept in memory")
		return
	}
	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := RDB.Ping(context.Background()).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}
	log.Info("Redis client connected successfully")
}

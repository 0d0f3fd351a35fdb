// Package bootstrap connects the backing stores named in the configuration.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"drchat/internal/config"
	redisSvc "drchat/internal/service/redis"
	"drchat/internal/utils/log"
)

const connectTimeout = 10 * time.Second

func Mongo(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	log.Info("mongo connected", zap.String("database", cfg.Database))
	return client, client.Database(cfg.Database), nil
}

func Redis(ctx context.Context, cfg config.RedisConfig) (*redisSvc.RedisService, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	svc := redisSvc.NewRedis(rdb)

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := svc.Ping(ctx); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	log.Info("redis connected", zap.String("addr", cfg.Addr))
	return svc, nil
}

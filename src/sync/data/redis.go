package data

import (
	"context"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	// StreamTransfers carries raw Transfer events from the chain watcher.
	StreamTransfers = "pledgesync.transfers"
	// StreamProcessed carries acks for downstream consumers.
	StreamProcessed = "pledgesync.processed"
)

func MustRedis(url string) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	return redis.NewClient(opt)
}

func PublishProcessed(ctx context.Context, rdb *redis.Client, payload map[string]interface{}) error {
	_, err := rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamProcessed,
		Values: payload,
	}).Result()
	return err
}

package redis_client

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const maxPoolSize = 512

// NewRedisClient connects the broadcast bus. Pool size scales with the CPU
// count since every joined channel holds a blocking subscriber.
func NewRedisClient(host string, port int) (*redis.Client, error) {
	poolSize := runtime.NumCPU() * 8
	if poolSize > maxPoolSize {
		poolSize = maxPoolSize
	}

	rc := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		rc.Close()
		zap.L().Error("redis.connect", zap.Error(err))
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	return rc, nil
}

package rdb

import (
	"context"
	"fmt"

	"github.com/amoylab/chatterbox/internal/common/cnst"
	"github.com/amoylab/chatterbox/internal/common/config"
	"github.com/amoylab/chatterbox/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// NewClient builds a redis client for single, sentinel or cluster deployments
// and verifies connectivity with a PING.
func NewClient(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	opts := &redis.UniversalOptions{
		Addrs:    utils.SplitByMultipleDelimiters(cfg.Addr, ";", ","),
		Username: cfg.Username,
		Password: cfg.Password,
	}
	if cfg.ClusterType == cnst.RedisClusterTypeSentinel {
		opts.MasterName = cfg.MasterName
	}
	if cfg.ClusterType != cnst.RedisClusterTypeCluster {
		// can not set db in cluster mode
		opts.DB = cfg.DB
	}
	client := redis.NewUniversalClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

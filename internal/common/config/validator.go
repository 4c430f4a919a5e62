package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/amoylab/chatterbox/internal/common/cnst"
)

const (
	DefaultPort              = 3000
	DefaultHeartbeatInterval = 4 * time.Second
	DefaultHeartbeatTimeout  = 8 * time.Second
	DefaultWriteTimeout      = 5 * time.Second
	DefaultCommandTimeout    = 10 * time.Second
	DefaultMaxMessageSize    = 64 * 1024
	DefaultSendQueue         = 256
	DefaultPresenceKey       = "presence"
	DefaultBusTopic          = "chatterbox:events"
	DefaultMaxRetries        = 4
	DefaultBaseDelay         = 25 * time.Millisecond
	DefaultPageSize          = 20
)

// SetDefaults fills every unset field with its default value
func (c *ChatServerConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.PublicDir == "" {
		c.PublicDir = "public"
	}

	s := &c.Socket
	if s.HeartbeatInterval <= 0 {
		s.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if s.HeartbeatTimeout <= 0 {
		s.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.CommandTimeout <= 0 {
		s.CommandTimeout = DefaultCommandTimeout
	}
	if s.MaxMessageSize <= 0 {
		s.MaxMessageSize = DefaultMaxMessageSize
	}
	if s.SendQueue <= 0 {
		s.SendQueue = DefaultSendQueue
	}

	if c.Presence.Type == "" {
		c.Presence.Type = cnst.StoreTypeMemory.String()
	}
	// Presence must expire exactly when the transport gives up on a silent client.
	if c.Presence.Window <= 0 {
		c.Presence.Window = s.HeartbeatTimeout
	}
	setRedisDefaults(&c.Presence.Redis)
	if c.Presence.Redis.Key == "" {
		c.Presence.Redis.Key = DefaultPresenceKey
	}

	if c.Bus.Type == "" {
		c.Bus.Type = cnst.StoreTypeMemory.String()
	}
	setRedisDefaults(&c.Bus.Redis)
	if c.Bus.Redis.Topic == "" {
		c.Bus.Redis.Topic = DefaultBusTopic
	}

	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Type == "sqlite" && c.Database.DBName == "" {
		c.Database.DBName = "./data/chatterbox.db"
	}

	if c.Storage.MaxRetries <= 0 {
		c.Storage.MaxRetries = DefaultMaxRetries
	}
	if c.Storage.BaseDelay <= 0 {
		c.Storage.BaseDelay = DefaultBaseDelay
	}
	if c.Storage.PageSize <= 0 {
		c.Storage.PageSize = DefaultPageSize
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "chatterbox"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "chatterbox"
	}
}

func setRedisDefaults(r *RedisConfig) {
	if r.ClusterType == "" {
		r.ClusterType = cnst.RedisClusterTypeSingle
	}
}

// Validate checks the cross-field constraints of the configuration
func (c *ChatServerConfig) Validate() error {
	var errs []error

	if c.Socket.HeartbeatInterval >= c.Socket.HeartbeatTimeout {
		errs = append(errs, fmt.Errorf("socket.heartbeat_interval (%s) must be shorter than socket.heartbeat_timeout (%s)",
			c.Socket.HeartbeatInterval, c.Socket.HeartbeatTimeout))
	}
	if c.Presence.Window != c.Socket.HeartbeatTimeout {
		errs = append(errs, fmt.Errorf("presence.window (%s) must equal socket.heartbeat_timeout (%s)",
			c.Presence.Window, c.Socket.HeartbeatTimeout))
	}
	errs = append(errs, validateStore("presence", c.Presence.Type, c.Presence.Redis))
	errs = append(errs, validateStore("bus", c.Bus.Type, c.Bus.Redis))

	switch c.Database.Type {
	case "sqlite", "postgres", "mysql":
	default:
		errs = append(errs, fmt.Errorf("unsupported database type: %s", c.Database.Type))
	}

	return errors.Join(errs...)
}

func validateStore(section, typ string, redis RedisConfig) error {
	switch cnst.StoreType(typ) {
	case cnst.StoreTypeMemory:
		return nil
	case cnst.StoreTypeRedis:
		if redis.Addr == "" {
			return fmt.Errorf("%s.redis.addr is required", section)
		}
		switch redis.ClusterType {
		case cnst.RedisClusterTypeSingle, cnst.RedisClusterTypeCluster:
		case cnst.RedisClusterTypeSentinel:
			if redis.MasterName == "" {
				return fmt.Errorf("%s.redis.master_name is required for sentinel", section)
			}
		default:
			return fmt.Errorf("%s.redis.cluster_type %q is invalid", section, redis.ClusterType)
		}
		return nil
	default:
		return fmt.Errorf("%s: %w: %s", section, cnst.ErrUnsupportedStoreType, typ)
	}
}

package cnst

const (
	ChatServerYaml = "chatserver.yaml"
)

const (
	RedisClusterTypeSentinel = "sentinel"
	RedisClusterTypeCluster  = "cluster"
	RedisClusterTypeSingle   = "single"
)

// StoreType selects the backend of a shared component such as presence or the event bus.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

func (s StoreType) String() string {
	return string(s)
}

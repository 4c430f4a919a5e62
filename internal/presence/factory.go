package presence

import (
	"context"
	"fmt"

	"github.com/amoylab/chatterbox/internal/common/cnst"
	"github.com/amoylab/chatterbox/internal/common/config"
	"github.com/amoylab/chatterbox/internal/common/rdb"

	"go.uber.org/zap"
)

// NewBackend creates a presence backend based on configuration
func NewBackend(ctx context.Context, logger *zap.Logger, cfg *config.PresenceConfig) (Backend, error) {
	logger.Info("Initializing presence backend", zap.String("type", cfg.Type))
	switch cnst.StoreType(cfg.Type) {
	case cnst.StoreTypeMemory:
		return NewMemoryBackend(), nil
	case cnst.StoreTypeRedis:
		client, err := rdb.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisBackend(client, cfg.Redis.Key), nil
	default:
		return nil, fmt.Errorf("%w: %s", cnst.ErrUnsupportedStoreType, cfg.Type)
	}
}

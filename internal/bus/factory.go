package bus

import (
	"context"
	"fmt"

	"github.com/amoylab/chatterbox/internal/common/cnst"
	"github.com/amoylab/chatterbox/internal/common/config"
	"github.com/amoylab/chatterbox/internal/common/rdb"

	"go.uber.org/zap"
)

// NewBus creates an event bus based on configuration
func NewBus(ctx context.Context, logger *zap.Logger, cfg *config.BusConfig) (Bus, error) {
	logger.Info("Initializing event bus", zap.String("type", cfg.Type))
	switch cnst.StoreType(cfg.Type) {
	case cnst.StoreTypeMemory:
		return NewMemoryBus(logger), nil
	case cnst.StoreTypeRedis:
		client, err := rdb.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisBus(logger, client, cfg.Redis.Topic), nil
	default:
		return nil, fmt.Errorf("%w: %s", cnst.ErrUnsupportedStoreType, cfg.Type)
	}
}

package bus

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/amoylab/chatterbox/internal/common/cnst"
	"github.com/amoylab/chatterbox/internal/common/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewBus(t *testing.T) {
	ctx := context.Background()

	b, err := NewBus(ctx, zap.NewNop(), &config.BusConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryBus{}, b)

	mr := miniredis.RunT(t)
	b, err = NewBus(ctx, zap.NewNop(), &config.BusConfig{
		Type:  "redis",
		Redis: config.RedisConfig{ClusterType: cnst.RedisClusterTypeSingle, Addr: mr.Addr(), Topic: "t"},
	})
	require.NoError(t, err)
	assert.IsType(t, &RedisBus{}, b)
	assert.NoError(t, b.Close())

	_, err = NewBus(ctx, zap.NewNop(), &config.BusConfig{Type: "nats"})
	assert.ErrorIs(t, err, cnst.ErrUnsupportedStoreType)
}

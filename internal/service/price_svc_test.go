package service

import (
	"context"
	"testing"

	"github.com/chrisbachmaxwell/ebay-sync-app/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPriceSync_FollowsCatalogPrice(t *testing.T) {
	env := publishedEnv(t, 1, "500.00")
	ctx := context.Background()
	require.True(t, env.market.offerFor("CAM-1").Price.Equal(mustDecimal("500")))

	steps := []struct {
		price   string
		updated int
	}{
		{"450.00", 1},
		{"500.00", 1},
		{"500.00", 0},
	}
	for _, step := range steps {
		env.catalog.setPrice("p1", "CAM-1", step.price)
		res, err := env.prices.RunPriceSync(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, step.updated, res.Updated, "price %s", step.price)
		assert.True(t, env.market.offerFor("CAM-1").Price.Equal(mustDecimal(step.price)))
	}
	assert.Equal(t, 2, env.market.priceUpdates)

	m, _ := env.productRepo.FindLive(ctx, "p1", "CAM-1")
	require.NotNil(t, m.LastPushedPrice)
	assert.True(t, m.LastPushedPrice.Equal(mustDecimal("500")))
}

func TestRunPriceSync_AppliesMarkup(t *testing.T) {
	env := publishedEnv(t, 1, "100.00")
	env.setSetting(t, model.SettingPriceMarkupPercent, "10")

	res, err := env.prices.RunPriceSync(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.True(t, env.market.offerFor("CAM-1").Price.Equal(mustDecimal("110")))
}

func TestRunPriceSync_DryRunAndDisabled(t *testing.T) {
	env := publishedEnv(t, 1, "500.00")
	env.catalog.setPrice("p1", "CAM-1", "450.00")

	res, err := env.prices.RunPriceSync(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 0, env.market.priceUpdates)

	env.setSetting(t, model.SettingPriceSyncEnabled, "false")
	res, err = env.prices.RunPriceSync(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, res.Disabled)
	assert.Equal(t, 0, env.market.priceUpdates)
}

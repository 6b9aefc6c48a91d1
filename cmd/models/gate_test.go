package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGatePrice(t *testing.T) {
	price, ok := GatePrice(GateIrisScanUnlock)
	assert.True(t, ok)
	assert.Equal(t, 250.0, price)

	price, ok = GatePrice(GateVisitBooking)
	assert.True(t, ok)
	assert.Equal(t, 150.0, price)

	_, ok = GatePrice(GateKind("subscription"))
	assert.False(t, ok)
}

func TestTierUnlocks(t *testing.T) {
	assert.True(t, TierUnlocks(TierBronze, TierBronze))
	assert.False(t, TierUnlocks(TierBronze, TierSilver))
	assert.False(t, TierUnlocks(TierBronze, TierGold))

	assert.True(t, TierUnlocks(TierSilver, TierBronze))
	assert.True(t, TierUnlocks(TierSilver, TierSilver))
	assert.False(t, TierUnlocks(TierSilver, TierGold))

	assert.True(t, TierUnlocks(TierGold, TierBronze))
	assert.True(t, TierUnlocks(TierGold, TierSilver))
	assert.True(t, TierUnlocks(TierGold, TierGold))

	assert.False(t, TierUnlocks(TierGold, "Platinum"))
}

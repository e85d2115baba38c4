package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("INVENTORY_BACKEND", "")
	t.Setenv("DISCOUNT_SOURCE", "")
	t.Setenv("RESERVATION_LOCK_TIMEOUT_MS", "")

	cfg := Load()
	assert.Equal(t, InventoryMemory, cfg.Business.InventoryBackend)
	assert.Equal(t, DiscountStatic, cfg.Business.DiscountSource)
	assert.Equal(t, 2*time.Second, cfg.Business.ReservationLockTimeout)
	assert.False(t, cfg.UsesPostgres())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("INVENTORY_BACKEND", "Redis")
	t.Setenv("REPOSITORY_TIMEOUT_MS", "250")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := Load()
	assert.Equal(t, InventoryRedis, cfg.Business.InventoryBackend)
	assert.Equal(t, 250*time.Millisecond, cfg.Business.RepositoryTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.UsesPostgres())
}

func TestLoadInvalidTimeoutsFallBack(t *testing.T) {
	for name, value := range map[string]string{
		"malformed": "2s",
		"zero":      "0",
		"negative":  "-50",
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv("RESERVATION_LOCK_TIMEOUT_MS", value)
			t.Setenv("REPOSITORY_TIMEOUT_MS", value)

			cfg := Load()
			assert.Equal(t, 2*time.Second, cfg.Business.ReservationLockTimeout)
			assert.Equal(t, time.Second, cfg.Business.RepositoryTimeout)
		})
	}
}

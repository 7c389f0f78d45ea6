package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load(nil)

	assert.Equal(t, "OrderServer", cfg.ServiceName)
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.False(t, cfg.EnableTLS)

	assert.Equal(t, 5*time.Second, cfg.Database.Timeout)
	assert.Equal(t, 16, cfg.Database.MaxConnections)
	assert.Equal(t, 4, cfg.Database.MinConnections)
	assert.Equal(t, 60*time.Second, cfg.Database.MaxIdleTime)

	assert.Equal(t, "127.0.0.1", cfg.Redis.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, 4, cfg.Redis.PoolSize)
	assert.Equal(t, time.Second, cfg.Redis.Timeout)
	assert.Equal(t, "order:", cfg.Redis.KeyPrefix)

	assert.Equal(t, []string{"127.0.0.1:9092"}, cfg.MQ.Brokers)
	assert.Equal(t, "order.events", cfg.MQ.OrderQueue)
	assert.Equal(t, "inventory.events", cfg.MQ.InventoryQueue)
	assert.True(t, cfg.MQ.EnableConsumer)

	assert.Equal(t, 300*time.Second, cfg.Reservation.TTL)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "orders-staging")
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("DB_MAX_CONNECTIONS", "32")
	t.Setenv("MQ_ENABLE_CONSUMER", "false")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092 ,")

	cfg := Load(nil)
	assert.Equal(t, "orders-staging", cfg.ServiceName)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, 32, cfg.Database.MaxConnections)
	assert.False(t, cfg.MQ.EnableConsumer)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.MQ.Brokers)
}

func TestLoadGarbageValuesFallBack(t *testing.T) {
	t.Setenv("DB_MAX_CONNECTIONS", "plenty")
	t.Setenv("MQ_ENABLE_CONSUMER", "perhaps")

	cfg := Load(nil)
	assert.Equal(t, 16, cfg.Database.MaxConnections)
	assert.True(t, cfg.MQ.EnableConsumer)
}

func TestRedisAddr(t *testing.T) {
	r := Redis{Host: "10.0.0.5", Port: 6380}
	assert.Equal(t, "10.0.0.5:6380", r.Addr())
}

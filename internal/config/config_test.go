package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: memory
gateway:
  base_url: https://api.gateway.example
  access_token: from-file
shipping:
  origin_zip: "1414"
  carrier_b:
    enabled: true
    base_url: http://legacy.example/epak
    tax_id: 30-00000000-0
    operation: "64665"
`), 0o600))

	t.Setenv("STOREFRONT_GATEWAY__ACCESS_TOKEN", "from-env")
	t.Setenv("STOREFRONT_HTTP__PORT", "9090")
	t.Setenv("STOREFRONT_SHIPPING__CARRIER_TIMEOUT", "2500ms")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "from-env", cfg.Gateway.AccessToken)
	assert.Equal(t, "9090", cfg.HTTP.Port)
	assert.Equal(t, 2500*time.Millisecond, cfg.Shipping.CarrierTimeout)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, 5*time.Second, cfg.Gateway.Timeout)
	assert.Equal(t, "ARS", cfg.Store.Currency)
	assert.Equal(t, "1414", cfg.Shipping.OriginZip)
	assert.True(t, cfg.Shipping.CarrierB.Enabled)
	assert.Equal(t, "64665", cfg.Shipping.CarrierB.Operation)
	assert.False(t, cfg.KafkaEnabled())
	assert.False(t, cfg.RedisEnabled())
}

func TestLoadConfigMissingFileUsesEnv(t *testing.T) {
	t.Setenv("STOREFRONT_STORE__DRIVER", "postgres")
	t.Setenv("STOREFRONT_STORE__DSN", "postgres://localhost/shop")
	t.Setenv("STOREFRONT_GATEWAY__BASE_URL", "https://api.gateway.example")
	t.Setenv("STOREFRONT_GATEWAY__ACCESS_TOKEN", "tok")
	t.Setenv("STOREFRONT_KAFKA__BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/shop", cfg.Store.DSN)
	assert.True(t, cfg.KafkaEnabled())
}

func TestValidate(t *testing.T) {
	var cfg Config
	cfg.Store.Driver = "postgres"
	cfg.Store.Currency = "pesos"
	cfg.Shipping.CarrierA.Enabled = true

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"store.dsn", "gateway.base_url", "gateway.access_token", "store.currency", "carrier_a"} {
		assert.Contains(t, err.Error(), want)
	}

	cfg = Config{}
	cfg.Store.Driver = "mongo"
	assert.ErrorContains(t, cfg.Validate(), "unsupported")
}

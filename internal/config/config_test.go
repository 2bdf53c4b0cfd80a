package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "simulated", cfg.PaymentMode)
	assert.Equal(t, "gridfs", cfg.BlobDriver)
	assert.Nil(t, cfg.Payments)
	assert.Empty(t, cfg.KafkaBrokers)

	host, err := os.Hostname()
	require.NoError(t, err)
	assert.Equal(t, host, cfg.InstanceID)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("CART_IDLE_TTL", "5m")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("INSTANCE_ID", "shop-1")
	t.Setenv("PAYMENTS_DB_HOST", "db")
	t.Setenv("PAYMENTS_DB_PORT", "6543")
	t.Setenv("PUBLIC_BASE_URL", "https://shop.example.com/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, 5*time.Minute, cfg.CartIdleTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "shop-1", cfg.InstanceID)
	require.NotNil(t, cfg.Payments)
	assert.Equal(t, 6543, cfg.Payments.Port)
	assert.Equal(t, "https://shop.example.com", cfg.PublicBaseURL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{}, "JWT_SECRET"},
		{"bad duration", map[string]string{"JWT_SECRET": "s", "REQUEST_TIMEOUT": "soon"}, "REQUEST_TIMEOUT"},
		{"bad blob driver", map[string]string{"JWT_SECRET": "s", "BLOB_DRIVER": "s3"}, "BLOB_DRIVER"},
		{"redirect without url", map[string]string{"JWT_SECRET": "s", "PAYMENT_MODE": "redirect"}, "PAYMENT_GATEWAY_URL"},
		{"bad db port", map[string]string{"JWT_SECRET": "s", "PAYMENTS_DB_HOST": "db", "PAYMENTS_DB_PORT": "x"}, "PAYMENTS_DB_PORT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

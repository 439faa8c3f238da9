package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalcBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{8, 16 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, calcBackoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, sleep(ctx, time.Minute))
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), Config{URL: "://not-a-url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse database url")
}

func TestMigrate_UnknownDirection(t *testing.T) {
	err := Migrate("file://does-not-exist", "postgres://localhost:1/none", MigrateDirection("sideways"))
	require.Error(t, err)
}

func TestPoolConfig(t *testing.T) {
	pc, err := poolConfig(Config{
		URL:             "postgres://u:p@localhost:5432/db",
		MaxOpenConns:    4,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Minute,
		ApplicationName: "statusboard",
	})
	require.NoError(t, err)

	assert.Equal(t, int32(4), pc.MaxConns)
	assert.Equal(t, int32(4), pc.MinConns, "idle connections never exceed the pool size")
	assert.Equal(t, time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, "statusboard", pc.ConnConfig.RuntimeParams["application_name"])
}

func TestPing_NoPool(t *testing.T) {
	require.Error(t, Ping(context.Background(), nil, time.Second))
}

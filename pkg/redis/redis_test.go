package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_New(t *testing.T) {
	srv := miniredis.RunT(t)

	cfg := &Config{URL: "redis://" + srv.Addr(), ReadTimeout: 1, WriteTimeout: 1, DialTimeout: 1}
	require.True(t, cfg.Enabled())

	client, err := cfg.New(context.Background())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := srv.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestConfig_NewWithoutURL(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.Enabled())

	_, err := cfg.New(context.Background())
	assert.Error(t, err)
}

func TestConfig_NewBadURL(t *testing.T) {
	cfg := &Config{URL: "not-a-url"}
	_, err := cfg.New(context.Background())
	assert.Error(t, err)
}

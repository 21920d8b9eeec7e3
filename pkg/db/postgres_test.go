package db

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_InvalidURL(t *testing.T) {
	_, err := Connect(context.Background(), Config{URL: "://not-a-url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse database config")
}

func TestConnect(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping connection test")
	}

	pool, err := Connect(context.Background(), Config{URL: dbURL, MaxConns: 2})
	require.NoError(t, err)
	defer pool.Close()

	assert.EqualValues(t, 2, pool.Config().MaxConns)
}

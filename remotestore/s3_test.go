package remotestore_test

import (
	"context"
	"testing"

	"github.com/programme-lv/evalboard/remotestore"
	"github.com/stretchr/testify/require"
)

func TestLoadAWSConfig(t *testing.T) {
	cfg, err := remotestore.LoadAWSConfig(context.Background(), "eu-north-1")
	require.NoError(t, err)
	require.Equal(t, "eu-north-1", cfg.Region)
	require.Equal(t, 10, cfg.Retryer().MaxAttempts())

	store := remotestore.NewS3Store(cfg, "requests", 0)
	require.NotNil(t, store)
}

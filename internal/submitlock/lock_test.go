package submitlock

import (
	"context"
	"testing"

	"github.com/arandulabs/kuatia/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilLockerGrantsEverything(t *testing.T) {
	var l *Locker

	token, ok, err := l.Acquire(context.Background(), "0180012345")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, token)

	assert.NoError(t, l.Release(context.Background(), "0180012345", token))
}

func TestLockerDisabledWithoutRedis(t *testing.T) {
	l := NewLocker(config.Config{})
	assert.Nil(t, l)

	// The nil result still behaves as a pass-through locker.
	_, ok, err := l.Acquire(context.Background(), "0180012345")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewLockerWithNilClient(t *testing.T) {
	assert.Nil(t, NewLockerWithClient(nil))
}

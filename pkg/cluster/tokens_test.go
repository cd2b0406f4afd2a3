package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReturnsThirtyTwoCharAlphanumeric(t *testing.T) {
	s := NewTokenStore()
	value, err := s.Generate()
	require.NoError(t, err)
	assert.Len(t, value, 32)
	for _, ch := range value {
		assert.True(t, (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9'),
			"expected only alphanumeric characters, got %q", ch)
	}
}

func TestConsumeSucceedsExactlyOnce(t *testing.T) {
	s := NewTokenStore()
	value, err := s.Generate()
	require.NoError(t, err)

	assert.True(t, s.Consume(value))
	assert.False(t, s.Consume(value), "a token must not be consumable twice")
}

func TestConsumeUnknownTokenFails(t *testing.T) {
	s := NewTokenStore()
	assert.False(t, s.Consume("does-not-exist"))
}

func TestConsumeExpiredTokenFails(t *testing.T) {
	s := NewTokenStore()
	fakeNow := time.Now()
	s.now = func() time.Time { return fakeNow }

	value, err := s.Generate()
	require.NoError(t, err)

	s.now = func() time.Time { return fakeNow.Add(TokenTTL + time.Second) }
	assert.False(t, s.Consume(value))
}

func TestGeneratePrunesExpiredBeforeInserting(t *testing.T) {
	s := NewTokenStore()
	fakeNow := time.Now()
	s.now = func() time.Time { return fakeNow }

	expired, err := s.Generate()
	require.NoError(t, err)

	s.now = func() time.Time { return fakeNow.Add(TokenTTL + time.Second) }
	_, err = s.Generate()
	require.NoError(t, err)

	assert.False(t, s.Consume(expired), "expired token should have been pruned, not merely expired")
}

package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelationshipEndTransitions(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("active vers terminal", func(t *testing.T) {
		rel := NewRelationship("t-1", "p-1")
		reason := "patient moved"

		require.NoError(t, rel.End(StateUnlinked, &reason, now))
		assert.Equal(t, StateUnlinked, rel.State)
		assert.Equal(t, &reason, rel.Reason)
		require.NotNil(t, rel.EndedAt)
		assert.Equal(t, now, *rel.EndedAt)
	})

	t.Run("retry même outcome: no-op succès", func(t *testing.T) {
		rel := NewRelationship("t-1", "p-1")
		require.NoError(t, rel.End(StateDischarged, nil, now))
		ended := *rel.EndedAt

		require.NoError(t, rel.End(StateDischarged, nil, now.Add(time.Hour)))
		assert.Equal(t, ended, *rel.EndedAt, "le retry ne doit pas réécrire le timestamp")
	})

	t.Run("outcome différent: conflit", func(t *testing.T) {
		rel := NewRelationship("t-1", "p-1")
		require.NoError(t, rel.End(StateUnlinked, nil, now))
		assert.ErrorIs(t, rel.End(StateDischarged, nil, now), ErrRelationshipClosed)
		assert.Equal(t, StateUnlinked, rel.State)
	})

	t.Run("active n'est pas un outcome", func(t *testing.T) {
		rel := NewRelationship("t-1", "p-1")
		assert.ErrorIs(t, rel.End(StateActive, nil, now), ErrRelationshipClosed)
		assert.True(t, rel.IsActive())
	})
}

func TestIdentityBanIdempotence(t *testing.T) {
	i, err := NewIdentity(RoleTherapist, "Dr. Ana")
	require.NoError(t, err)
	assert.False(t, i.IsBanned())

	first := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	i.Ban("fraud", first)
	require.True(t, i.IsBanned())

	// Un second ban conserve le timestamp et la raison d'origine.
	i.Ban("other reason", first.Add(time.Hour))
	assert.Equal(t, first, *i.BannedAt)
	assert.Equal(t, "fraud", *i.BanReason)

	i.Unban()
	assert.False(t, i.IsBanned())
	assert.Nil(t, i.BanReason)

	i.Unban() // idempotent aussi
	assert.False(t, i.IsBanned())
}

func TestNewIdentityValidation(t *testing.T) {
	_, err := NewIdentity(Role("superuser"), "X")
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = NewIdentity(RolePatient, "   ")
	assert.ErrorIs(t, err, ErrInvalidDisplayName)

	i, err := NewIdentity(RolePatient, "  Jo  ")
	require.NoError(t, err)
	assert.Equal(t, "Jo", i.DisplayName)
	assert.NotEmpty(t, i.ID)
}

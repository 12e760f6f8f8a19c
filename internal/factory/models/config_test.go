package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hatchery/contracts/spawn"
	dErrors "hatchery/pkg/domain-errors"
)

func testTemplate(id uint64) spawn.TemplateVersion {
	return spawn.TemplateVersion{ID: id, CodeHash: "beef"}
}

func TestNewConfig(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	t.Run("starts running", func(t *testing.T) {
		cfg, err := NewConfig(testTemplate(1), "admin", now)
		require.NoError(t, err)

		assert.False(t, cfg.Stopped)
		assert.NoError(t, cfg.CanCreate())
	})

	t.Run("rejects empty admin", func(t *testing.T) {
		_, err := NewConfig(testTemplate(1), "", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("rejects empty code hash", func(t *testing.T) {
		_, err := NewConfig(spawn.TemplateVersion{ID: 1}, "admin", now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestConfigIsAdmin(t *testing.T) {
	cfg, err := NewConfig(testTemplate(1), "admin", time.Now())
	require.NoError(t, err)

	assert.True(t, cfg.IsAdmin("admin"))
	assert.False(t, cfg.IsAdmin("intruder"))
	assert.False(t, cfg.IsAdmin(""))
}

func TestConfigStopped(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	cfg, err := NewConfig(testTemplate(1), "admin", now)
	require.NoError(t, err)

	t.Run("stopping blocks creation", func(t *testing.T) {
		cfg.ApplySetStopped(true, now.Add(time.Minute))

		err := cfg.CanCreate()
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		assert.Equal(t, now.Add(time.Minute), cfg.UpdatedAt)
	})

	t.Run("resuming unblocks creation", func(t *testing.T) {
		cfg.ApplySetStopped(false, now.Add(2*time.Minute))
		assert.NoError(t, cfg.CanCreate())
	})

	t.Run("setting the same value again is a no-op", func(t *testing.T) {
		cfg.ApplySetStopped(false, now.Add(3*time.Minute))
		assert.NoError(t, cfg.CanCreate())
	})
}

func TestConfigSetTemplate(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	cfg, err := NewConfig(testTemplate(1), "admin", now)
	require.NoError(t, err)

	cfg.ApplySetTemplate(testTemplate(2), now.Add(time.Minute))

	assert.Equal(t, uint64(2), cfg.Template.ID)
	assert.Equal(t, now.Add(time.Minute), cfg.UpdatedAt)
}

package profile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileValidate(t *testing.T) {
	t.Run("UnknownModeFallsBackToDemo", func(t *testing.T) {
		p := &Profile{Mode: "staging", Data: t.TempDir(), Driver: "sqlite"}
		require.NoError(t, p.Validate())
		assert.Equal(t, "demo", p.Mode)
	})

	t.Run("SqliteDSNDerivedFromDataDir", func(t *testing.T) {
		dir := t.TempDir()
		p := &Profile{Mode: "dev", Data: dir, Driver: "sqlite"}
		require.NoError(t, p.Validate())
		assert.Equal(t, filepath.Join(dir, "counsel_dev.db"), p.DSN)
	})

	t.Run("ExplicitDSNKept", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: t.TempDir(), Driver: "sqlite", DSN: "/tmp/custom.db"}
		require.NoError(t, p.Validate())
		assert.Equal(t, "/tmp/custom.db", p.DSN)
	})

	t.Run("PostgresRequiresDSN", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: t.TempDir(), Driver: "postgres"}
		assert.Error(t, p.Validate())
	})

	t.Run("MissingDataDirRejected", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: "/does/not/exist", Driver: "sqlite"}
		assert.Error(t, p.Validate())
	})
}

func TestIsAIEnabled(t *testing.T) {
	p := &Profile{}
	assert.False(t, p.IsAIEnabled())
	p.AIAPIKey = "sk-test"
	assert.True(t, p.IsAIEnabled())
}

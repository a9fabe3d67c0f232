package hypernet

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillaczel/cool-chic/config"
)

func TestKindFromString(t *testing.T) {
	for name, want := range map[string]Kind{
		"CoolchicWholeNet": CoolchicWholeNet,
		"DeltaWholeNet":    DeltaWholeNet,
		"NOWholeNet":       NOWholeNet,
	} {
		kind, err := KindFromString(name)
		require.NoError(t, err)
		assert.Equal(t, want, kind)
		assert.Equal(t, name, kind.String())
	}

	_, err := KindFromString("SomethingElse")
	require.Error(t, err)
	var cfgErr *config.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestResolveCheckpoint(t *testing.T) {
	dir := t.TempDir()
	older := filepath.Join(dir, "epoch_0010")
	newer := filepath.Join(dir, "epoch_0020")
	require.NoError(t, os.Mkdir(older, 0755))
	require.NoError(t, os.Mkdir(newer, 0755))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	// A concrete path resolves to itself.
	resolved, err := ResolveCheckpoint(older)
	require.NoError(t, err)
	assert.Equal(t, older, resolved)

	// The sentinel resolves to the newest sibling.
	resolved, err = ResolveCheckpoint(filepath.Join(dir, LatestSentinel))
	require.NoError(t, err)
	assert.Equal(t, newer, resolved)

	// Modification-time ties fall back to lexicographic order.
	require.NoError(t, os.Chtimes(older, past, past))
	require.NoError(t, os.Chtimes(newer, past, past))
	resolved, err = ResolveCheckpoint(filepath.Join(dir, LatestSentinel))
	require.NoError(t, err)
	assert.Equal(t, newer, resolved)

	_, err = ResolveCheckpoint(filepath.Join(t.TempDir(), LatestSentinel))
	require.Error(t, err)
}

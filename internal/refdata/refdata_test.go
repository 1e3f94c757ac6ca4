package refdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "refdata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	store, err := Load(writeFile(t, `
symbols:
  AAPL:
    "100": XNAS
    "207": XNAS
  ESZ6:
    "100": XCME
`))
	require.NoError(t, err)

	assert.Equal(t, 2, store.Symbols())
	assert.Equal(t, map[string]string{"100": "XNAS", "207": "XNAS"}, store.FIXFields("AAPL"))
	assert.Nil(t, store.FIXFields("MSFT"))
}

func TestLoadRejectsNonNumericTags(t *testing.T) {
	_, err := Load(writeFile(t, "symbols:\n  AAPL:\n    exchange: XNAS\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-numeric FIX tag")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestEmptyStore(t *testing.T) {
	store := Empty()
	assert.Zero(t, store.Symbols())
	assert.Nil(t, store.FIXFields("AAPL"))
}

package cost

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRatesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
models:
  gpt-5-mini:
    input: 0.50
    output: 4.00
    cache_read_mul: 0.2
  custom-model:
    input: 2.00
    output: 8.00
`), 0o644))

	rates, err := LoadRatesFile(path)
	require.NoError(t, err)

	// File entries override the defaults.
	assert.InDelta(t, 0.50, rates.Models["gpt-5-mini"].Input, 1e-9)
	assert.InDelta(t, 0.2, rates.Models["gpt-5-mini"].CacheReadMul, 1e-9)

	// Unknown models from the file are added.
	assert.InDelta(t, 2.00, rates.Models["custom-model"].Input, 1e-9)

	// Untouched defaults survive.
	assert.InDelta(t, 1.25, rates.Models["gpt-5"].Input, 1e-9)
}

func TestLoadRatesFileMissing(t *testing.T) {
	t.Parallel()

	_, err := LoadRatesFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRatesFileMalformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("models: [not, a, map]"), 0o644))

	_, err := LoadRatesFile(path)
	assert.Error(t, err)
}

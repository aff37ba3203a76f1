package qconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qfgo.yaml")
	doc := `
maxActive: 16
maxPubSig: 64
stagingSize: 8
maxRetry: 2
strategy: high-perf
pools:
  - name: small
    blockSize: 16
    count: 4
    margin: 1
  - name: large
    blockSize: 64
    count: 2
    margin: 0
relay:
  mainBufferSize: 8
  overflowBufferSize: 4
  blockSize: 16
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.MaxActive)
	assert.Equal(t, "high-perf", cfg.Strategy)
	assert.Len(t, cfg.Pools, 2)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsDescendingPoolOrder(t *testing.T) {
	cfg := Default()
	cfg.Pools = []PoolConfig{
		{Name: "a", BlockSize: 64, Count: 1, Margin: 0},
		{Name: "b", BlockSize: 16, Count: 1, Margin: 0},
	}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := Default()
	cfg.Strategy = "bogus"
	assert.Error(t, cfg.Validate())
}

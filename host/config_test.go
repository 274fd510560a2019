package host

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-bridge/errors"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
max_workers: 4
parallelism: 2
tls_align: 32
fetch_timeout: 5s
allowed_hosts: [example.com, "127.0.0.1"]
memory_pages: 32
`))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.Equal(t, uint32(2), cfg.Parallelism)
	assert.Equal(t, uint32(32), cfg.TLSAlign)
	assert.Equal(t, uint32(DefaultTLSSize), cfg.TLSSize)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.Equal(t, []string{"example.com", "127.0.0.1"}, cfg.AllowedHosts)
	assert.Equal(t, uint32(32), cfg.MemoryPages)
	assert.Equal(t, uint32(DefaultMaxMemoryPages), cfg.MaxMemoryPages)
	assert.Equal(t, uint32(DefaultStackSize), cfg.StackSize)
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"tls align not power of two", "tls_align: 24"},
		{"negative workers", "max_workers: -1"},
		{"too many pages", "memory_pages: 70000"},
		{"max below initial", "memory_pages: 100\nmax_memory_pages: 50"},
		{"small stack", "stack_size: 1024"},
		{"empty host", "allowed_hosts: ['']"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput})
		})
	}
}

func TestParseConfig_Malformed(t *testing.T) {
	_, err := ParseConfig([]byte("max_workers: ["))
	require.Error(t, err)
	assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindInvalidData})
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_workers: 3\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxWorkers)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, &errors.Error{Kind: errors.KindNotFound})
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigSchema(t *testing.T) {
	data, err := ConfigSchema()
	require.NoError(t, err)
	for _, field := range []string{"max_workers", "tls_align", "fetch_timeout", "allowed_hosts", "memory_pages"} {
		assert.Contains(t, string(data), `"`+field+`"`)
	}
}

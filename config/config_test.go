package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenVanZee/sony-projector-control/pkg/pjlink"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
projectors:
  - nickname: left
    name: Left
    address: 10.10.10.2
    location: Main Hall - Left Side
    groups: [front]
    aliases: [l]
  - nickname: rear
    address: 10.10.10.4
    port: 4353
    groups: [back]
network:
  connect_timeout: 3s
  read_timeout: 500ms
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Projectors, 2)
	assert.Equal(t, "left", cfg.Projectors[0].Nickname)
	assert.Equal(t, pjlink.DefaultPort, cfg.Projectors[0].Port)
	assert.Equal(t, 4353, cfg.Projectors[1].Port)
	assert.Equal(t, "debug", cfg.Log.Level)

	connect, read, err := cfg.Network.Timeouts()
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, connect)
	assert.Equal(t, 500*time.Millisecond, read)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
projectors:
  - nickname: left
    address: 10.10.10.2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "5s", cfg.Network.ConnectTimeout)
	assert.Equal(t, "2s", cfg.Network.ReadTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("PROJECTOR_HOST", "192.168.7.20")
	path := writeConfig(t, `
projectors:
  - nickname: left
    address: ${PROJECTOR_HOST}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "192.168.7.20", cfg.Projectors[0].Address)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "projectors: [nickname")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestTimeouts_Invalid(t *testing.T) {
	n := NetworkConfig{ConnectTimeout: "fast", ReadTimeout: "2s"}
	_, _, err := n.Timeouts()
	assert.Error(t, err)
}

func TestDescriptors(t *testing.T) {
	cfg := Default()
	descriptors := cfg.Descriptors()
	require.Len(t, descriptors, 2)
	assert.Equal(t, "left", descriptors[0].Nickname)
	assert.Equal(t, "10.10.10.2", descriptors[0].Host)
	assert.Equal(t, []string{"front"}, descriptors[0].Groups)

	// The default inventory must produce a valid registry.
	registry, err := pjlink.NewRegistry(descriptors)
	require.NoError(t, err)

	d, err := registry.Resolve("r")
	require.NoError(t, err)
	assert.Equal(t, "right", d.Nickname)
}

func TestDescriptors_AliasConflictSurfacesAtRegistryLoad(t *testing.T) {
	cfg := &Config{
		Projectors: []ProjectorConfig{
			{Nickname: "left", Address: "10.10.10.2", Aliases: []string{"p"}},
			{Nickname: "right", Address: "10.10.10.3", Aliases: []string{"p"}},
		},
	}
	cfg.setDefaults()

	_, err := pjlink.NewRegistry(cfg.Descriptors())
	assert.ErrorIs(t, err, pjlink.ErrAliasConflict)
}

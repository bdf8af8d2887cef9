package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AtDexters-Lab/nexus-rendezvous/internal/protocol"
	"github.com/stretchr/testify/require"
)

const testPeerID = "AQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQE="

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadServerConfigDefaults(t *testing.T) {
	cfg, err := LoadServerConfig(writeConfig(t, "secretFile: /etc/rendezvous/secret\n"))
	require.NoError(t, err)
	require.Equal(t, ":1223", cfg.ListenAddress)
	require.Equal(t, "reject", cfg.CapacityPolicy)
	require.False(t, cfg.Encryption)
	require.False(t, cfg.Monitor.Enabled())
}

func TestLoadServerConfigFull(t *testing.T) {
	cfg, err := LoadServerConfig(writeConfig(t, `
listenAddress: "127.0.0.1:4000"
secretFile: /etc/rendezvous/secret
encryption: true
capacityPolicy: evict-oldest
monitor:
  listenAddress: "127.0.0.1:8080"
  jwtSecret: "s3cret"
`))
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:4000", cfg.ListenAddress)
	require.True(t, cfg.Encryption)
	require.Equal(t, "evict-oldest", cfg.CapacityPolicy)
	require.True(t, cfg.Monitor.Enabled())
}

func TestLoadServerConfigValidation(t *testing.T) {
	cases := map[string]string{
		"missing secret":     "listenAddress: ':1'\n",
		"bad policy":         "secretFile: x\ncapacityPolicy: lru\n",
		"monitor w/o secret": "secretFile: x\nmonitor:\n  listenAddress: ':8080'\n",
		"malformed yaml":     "secretFile: [\n",
	}
	for name, body := range cases {
		_, err := LoadServerConfig(writeConfig(t, body))
		require.Error(t, err, name)
	}
	_, err := LoadServerConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadClientConfig(t *testing.T) {
	cfg, err := LoadClientConfig(writeConfig(t, `
serverHost: "Rendezvous.Example.COM."
peerID: "`+testPeerID+`"
secretFile: /etc/rendezvous/secret
listenPort: 51820
`))
	require.NoError(t, err)
	require.Equal(t, "rendezvous.example.com", cfg.ServerHost)
	require.Equal(t, protocol.DefaultPort, cfg.ServerPort)
	require.Equal(t, "rendezvous.example.com:1223", cfg.ServerAddress())
	require.Equal(t, 5*time.Second, cfg.Timeout())
	require.Equal(t, OutputWGConf, cfg.Output)
	require.Equal(t, protocol.Flags(0), cfg.Flags())
}

func TestClientFlags(t *testing.T) {
	yes, no := true, false
	cases := []struct {
		endpoint, record *bool
		want             protocol.Flags
	}{
		{nil, nil, 0},
		{&yes, &yes, 0},
		{&no, &yes, protocol.FlagKeepEndpoint},
		{&no, &no, protocol.FlagKeepEndpoint | protocol.FlagKeepRecord},
		{&yes, &no, 0},
	}
	for _, tc := range cases {
		cfg := &ClientConfig{UpdateEndpoint: tc.endpoint, UpdateRecord: tc.record}
		require.Equal(t, tc.want, cfg.Flags())
	}
}

func TestLoadClientConfigValidation(t *testing.T) {
	base := "serverHost: h\nsecretFile: s\npeerID: " + testPeerID + "\n"
	cases := map[string]string{
		"missing host":   strings.Replace(base, "serverHost: h\n", "", 1),
		"missing secret": strings.Replace(base, "secretFile: s\n", "", 1),
		"bad peer id":    strings.Replace(base, testPeerID, "abc", 1),
		"bad port":       base + "serverPort: 70000\n",
		"bad output":     base + "output: json\n",
		"negative time":  base + "timeoutSeconds: -1\n",
	}
	for name, body := range cases {
		_, err := LoadClientConfig(writeConfig(t, body))
		require.Error(t, err, name)
	}
}

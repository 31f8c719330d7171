package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/warpcode/internal/registry"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"DOMAIN", "SIGNALING_URL", "STUN_SERVER", "TURN_SERVER", "TURN_USERNAME", "TURN_PASSWORD",
		"PORT", "SESSION_TTL", "SWEEP_INTERVAL", "MAX_CONNS_PER_IP", "TRUST_PROXY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultDomain, cfg.Domain)
	assert.Equal(t, "wss://"+DefaultDomain+"/ws", cfg.WebSocketURL)
	assert.Equal(t, []string{DefaultSTUN}, cfg.GetSTUNServers())
	assert.Nil(t, cfg.GetTURNServers())
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOMAIN", "env.example")
	t.Setenv("STUN_SERVER", "stun:env.example:3478")

	cfg, err := Load(Options{Domain: "flag.example"})
	require.NoError(t, err)
	assert.Equal(t, "flag.example", cfg.Domain)
	assert.Equal(t, "stun:env.example:3478", cfg.STUNServer)
}

func TestLoadLocalDomainUsesPlainWebsocket(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Options{Domain: "localhost:8080"})
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.WebSocketURL)
	assert.Equal(t, "http://localhost:8080/?code=123456", cfg.GetRoomLink("123456"))
}

func TestLoadSignalingURLOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("SIGNALING_URL", "ws://10.0.0.5:9000/ws")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.5:9000/ws", cfg.WebSocketURL)

	_, err = Load(Options{SignalingURL: "http://10.0.0.5/ws"})
	assert.Error(t, err)
}

func TestTURNServers(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Options{TURNServer: "turn:relay.example"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"turn:relay.example:3478?transport=udp",
		"turn:relay.example:3478?transport=tcp",
		"turns:relay.example:5349?transport=tcp",
	}, cfg.GetTURNServers())

	user, pass := cfg.GetTURNCredentials()
	assert.Equal(t, DefaultTURNUser, user)
	assert.Equal(t, DefaultTURNPass, pass)
}

func TestParseCode(t *testing.T) {
	cases := map[string]string{
		"482913":                                "482913",
		"  482913\n":                            "482913",
		"https://warpcode.qzz.io/?code=482913":  "482913",
		"http://localhost:3000?code=000042":     "000042",
	}
	for in, want := range cases {
		got, err := ParseCode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"12", "https://warpcode.qzz.io/?code=12", "hello", ""} {
		_, err := ParseCode(in)
		assert.Error(t, err, in)
	}
}

func TestLoadServerDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadServer(ServerOptions{})
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, registry.DefaultTTL, cfg.SessionTTL)
	assert.Equal(t, registry.DefaultSweepInterval, cfg.SweepInterval)
	assert.Equal(t, registry.DefaultMaxConnsPerAddr, cfg.MaxConnsPerAddr)
	assert.False(t, cfg.TrustProxy)
}

func TestLoadServerEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_TTL", "2m")
	t.Setenv("MAX_CONNS_PER_IP", "3")
	t.Setenv("TRUST_PROXY", "true")

	cfg, err := LoadServer(ServerOptions{SweepInterval: 10 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 2*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 10*time.Second, cfg.SweepInterval)
	assert.Equal(t, 3, cfg.RegistryOptions().MaxConnsPerAddr)
	assert.True(t, cfg.TrustProxy)
}

func TestLoadServerRejectsGarbage(t *testing.T) {
	clearEnv(t)

	t.Setenv("PORT", "eighty")
	_, err := LoadServer(ServerOptions{})
	assert.Error(t, err)

	t.Setenv("PORT", "")
	t.Setenv("SESSION_TTL", "-1s")
	_, err = LoadServer(ServerOptions{})
	assert.Error(t, err)

	t.Setenv("SESSION_TTL", "")
	t.Setenv("TRUST_PROXY", "perhaps")
	_, err = LoadServer(ServerOptions{})
	assert.Error(t, err)
}

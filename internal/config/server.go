package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BioHazard786/warpcode/internal/registry"
)

// DefaultPort is the signaling server's listen port.
const DefaultPort = 8080

// ServerConfig holds the rendezvous server settings.
type ServerConfig struct {
	Port            int
	SessionTTL      time.Duration
	SweepInterval   time.Duration
	MaxConnsPerAddr int

	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
}

// ServerOptions carries flag overrides; zero values defer to the
// environment and then the defaults.
type ServerOptions struct {
	Port            int
	SessionTTL      time.Duration
	SweepInterval   time.Duration
	MaxConnsPerAddr int
	TrustProxy      bool
}

// LoadServer reads server configuration with the same precedence as Load.
func LoadServer(opts ServerOptions) (*ServerConfig, error) {
	port, err := pickInt(opts.Port, "PORT", DefaultPort)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}

	ttl, err := pickDuration(opts.SessionTTL, "SESSION_TTL", registry.DefaultTTL)
	if err != nil {
		return nil, err
	}
	sweep, err := pickDuration(opts.SweepInterval, "SWEEP_INTERVAL", registry.DefaultSweepInterval)
	if err != nil {
		return nil, err
	}
	maxConns, err := pickInt(opts.MaxConnsPerAddr, "MAX_CONNS_PER_IP", registry.DefaultMaxConnsPerAddr)
	if err != nil {
		return nil, err
	}

	trust := opts.TrustProxy
	if !trust {
		if v := os.Getenv("TRUST_PROXY"); v != "" {
			trust, err = strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("invalid TRUST_PROXY %q: %w", v, err)
			}
		}
	}

	return &ServerConfig{
		Port:            port,
		SessionTTL:      ttl,
		SweepInterval:   sweep,
		MaxConnsPerAddr: maxConns,
		TrustProxy:      trust,
	}, nil
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// RegistryOptions maps the settings onto registry options.
func (c *ServerConfig) RegistryOptions() registry.Options {
	return registry.Options{
		TTL:             c.SessionTTL,
		MaxConnsPerAddr: c.MaxConnsPerAddr,
	}
}

func pickInt(flag int, env string, def int) (int, error) {
	if flag != 0 {
		return flag, nil
	}
	v := os.Getenv(env)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", env, v, err)
	}
	return n, nil
}

func pickDuration(flag time.Duration, env string, def time.Duration) (time.Duration, error) {
	if flag != 0 {
		return flag, nil
	}
	v := os.Getenv(env)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", env, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", env, v)
	}
	return d, nil
}

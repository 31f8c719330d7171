package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/BioHazard786/warpcode/internal/registry"
)

// Default configuration values (production)
const (
	DefaultDomain   = "warpcode.qzz.io"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultTURN     = "" // Optional, empty by default
	DefaultTURNUser = "warpcode"
	DefaultTURNPass = "warpcode-secret"
)

// Config holds application configuration
type Config struct {
	// Domain is the backend server domain
	Domain string

	// WebSocketURL is constructed from domain unless SIGNALING_URL is set
	WebSocketURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain       string
	SignalingURL string
	STUNServer   string
	TURNServer   string
	TURNUser     string
	TURNPass     string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := pick(opts.Domain, "DOMAIN", DefaultDomain)
	stunServer := pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN)
	turnServer := pick(opts.TURNServer, "TURN_SERVER", DefaultTURN)
	turnUser := pick(opts.TURNUser, "TURN_USERNAME", DefaultTURNUser)
	turnPass := pick(opts.TURNPass, "TURN_PASSWORD", DefaultTURNPass)

	wsURL := pick(opts.SignalingURL, "SIGNALING_URL", "")
	if wsURL == "" {
		scheme := "wss"
		if isLocal(domain) {
			scheme = "ws"
		}
		wsURL = fmt.Sprintf("%s://%s/ws", scheme, domain)
	}

	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid signaling url %q: %w", wsURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid signaling url %q: scheme must be ws or wss", wsURL)
	}

	return &Config{
		Domain:       domain,
		WebSocketURL: wsURL,
		STUNServer:   stunServer,
		TURNServer:   turnServer,
		TURNUser:     turnUser,
		TURNPass:     turnPass,
	}, nil
}

// pick returns flag if set, else the environment variable env, else def.
func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

func isLocal(domain string) bool {
	host := domain
	if h, _, ok := strings.Cut(domain, ":"); ok {
		host = h
	}
	return host == "localhost" || host == "127.0.0.1"
}

// GetRoomLink returns the webapp URL that opens a room code
func (c *Config) GetRoomLink(code string) string {
	scheme := "https"
	if isLocal(c.Domain) {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/?code=%s", scheme, c.Domain, code)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// ParseCode extracts a room code from either a bare code or a share link
// carrying it in the code query parameter.
func ParseCode(input string) (string, error) {
	input = strings.TrimSpace(input)
	if registry.ValidCode(input) {
		return input, nil
	}

	u, err := url.Parse(input)
	if err == nil && u.Scheme != "" {
		if code := strings.TrimSpace(u.Query().Get("code")); registry.ValidCode(code) {
			return code, nil
		}
	}
	return "", fmt.Errorf("%q is not a 6-digit code or share link", input)
}

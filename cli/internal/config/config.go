package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcast/cli/internal/utils"
)

// Default configuration values (production)
const (
	DefaultDomain = "warpcast.qzz.io"
	DefaultSTUN   = "stun:stun.l.google.com:19302"

	// DefaultReconnectAttempts and DefaultReconnectDelay bound how hard the
	// client tries to reach the signaling server.
	DefaultReconnectAttempts = 5
	DefaultReconnectDelay    = 1000 // milliseconds
)

// Config holds application configuration
type Config struct {
	// Domain is the signaling server domain (host[:port])
	Domain string

	// Insecure switches to ws:// and http://, for local servers
	Insecure bool

	// WebSocketURL is constructed from domain
	WebSocketURL string

	// ICE servers for WebRTC. STUNServers is never empty.
	STUNServers []string
	TURNServer  string
	TURNUser    string
	TURNPass    string

	// ForceRelay restricts ICE to TURN candidates
	ForceRelay bool

	ReconnectAttempts int
	ReconnectDelayMS  int
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain     string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
	Insecure   bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Defaults - lowest priority
func Load(opts Options) (*Config, error) {
	cfg := &Config{
		Domain:            firstNonEmpty(opts.Domain, os.Getenv("DOMAIN"), DefaultDomain),
		Insecure:          opts.Insecure || envBool("INSECURE"),
		STUNServers:       []string{firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN)},
		TURNServer:        firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:          firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:          firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
		ForceRelay:        opts.ForceRelay,
		ReconnectAttempts: DefaultReconnectAttempts,
		ReconnectDelayMS:  DefaultReconnectDelay,
	}

	if cfg.ForceRelay && cfg.TURNServer == "" {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	scheme := "wss"
	if cfg.Insecure {
		scheme = "ws"
	}
	cfg.WebSocketURL = fmt.Sprintf("%s://%s/ws?client=cli", scheme, cfg.Domain)

	return cfg, nil
}

// GetRoomLink returns the webapp URL for a room ID
func (c *Config) GetRoomLink(roomID string) string {
	scheme := "https"
	if c.Insecure {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/r/%s", scheme, c.Domain, roomID)
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("turn:%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}

// ICEServers builds the WebRTC ICE server list.
func (c *Config) ICEServers() []webrtc.ICEServer {
	servers := []webrtc.ICEServer{{URLs: c.STUNServers}}

	if turn := c.GetTURNServers(); turn != nil {
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}
	return servers
}

// ICETransportPolicy returns relay-only when forced, or when the host looks
// like it sits behind a VPN or CGNAT and a TURN server is available.
func (c *Config) ICETransportPolicy() webrtc.ICETransportPolicy {
	if c.TURNServer != "" && (c.ForceRelay || utils.ShouldForceRelay()) {
		return webrtc.ICETransportPolicyRelay
	}
	return webrtc.ICETransportPolicyAll
}

// PeerConfiguration is the pion configuration every peer link is created with.
func (c *Config) PeerConfiguration() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers:         c.ICEServers(),
		ICETransportPolicy: c.ICETransportPolicy(),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Default configuration values
const (
	DefaultPort           = 8080
	DefaultMaxRoomMembers = 2
	DefaultMaxMessageSize = 64 * 1024 // 64 KB - enough for SDP blobs
	DefaultMessageRate    = 20.0      // frames per second per connection
	DefaultMessageBurst   = 40

	DefaultTarget    = TargetRemote
	DefaultLocalURL  = "ws://localhost:8080/ws"
	DefaultRemoteURL = "wss://studystim.up.railway.app/ws"
	DefaultSTUN      = "stun:stun.l.google.com:19302"

	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = 2 * time.Second
)

// Target selects which deployment the client talks to.
type Target string

const (
	TargetLocal  Target = "local"
	TargetRemote Target = "remote"
)

// ParseTarget validates a target name.
func ParseTarget(s string) (Target, error) {
	switch Target(strings.ToLower(strings.TrimSpace(s))) {
	case TargetLocal:
		return TargetLocal, nil
	case TargetRemote:
		return TargetRemote, nil
	default:
		return "", fmt.Errorf("unknown target %q (want local or remote)", s)
	}
}

// ServerConfig holds relay server settings.
type ServerConfig struct {
	Port           int
	MaxRoomMembers int // 0 = unlimited
	MaxMessageSize int64
	MessageRate    float64 // 0 = unlimited
	MessageBurst   int
}

// ClientConfig holds client settings.
type ClientConfig struct {
	Target    Target
	LocalURL  string
	RemoteURL string

	// ServerURL overrides the target's endpoint when set.
	ServerURL string

	Username string

	MaxReconnectAttempts int
	ReconnectDelay       time.Duration

	// ICE servers for WebRTC
	STUNServer  string
	TURNServers []string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool
}

// Options carries CLI flag overrides. Zero values and nil pointers mean
// "not set".
type Options struct {
	ConfigPath string

	Port           int
	MaxRoomMembers *int

	Target               string
	ServerURL            string
	Username             string
	MaxReconnectAttempts *int
	ReconnectDelay       time.Duration
	STUNServer           string
	TURNServer           string
	TURNUser             string
	TURNPass             string
	ForceRelay           bool
}

// fileConfig is the TOML layout.
type fileConfig struct {
	Server struct {
		Port           int     `toml:"port"`
		MaxRoomMembers *int    `toml:"max_room_members"`
		MaxMessageSize int64   `toml:"max_message_size"`
		MessageRate    float64 `toml:"message_rate"`
		MessageBurst   int     `toml:"message_burst"`
	} `toml:"server"`

	Client struct {
		Target               string   `toml:"target"`
		LocalURL             string   `toml:"local_url"`
		RemoteURL            string   `toml:"remote_url"`
		Server               string   `toml:"server"`
		Username             string   `toml:"username"`
		MaxReconnectAttempts *int     `toml:"max_reconnect_attempts"`
		ReconnectDelay       string   `toml:"reconnect_delay"`
		STUNServer           string   `toml:"stun_server"`
		TURNServers          []string `toml:"turn_servers"`
		TURNUser             string   `toml:"turn_username"`
		TURNPass             string   `toml:"turn_password"`
		ForceRelay           bool     `toml:"force_relay"`
	} `toml:"client"`
}

// LoadServer reads server configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables (including a .env file in the working directory)
// 3. TOML config file
// 4. Hardcoded defaults - lowest priority
func LoadServer(opts Options) (*ServerConfig, error) {
	file, err := prepare(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	cfg := &ServerConfig{
		Port:           DefaultPort,
		MaxRoomMembers: DefaultMaxRoomMembers,
		MaxMessageSize: DefaultMaxMessageSize,
		MessageRate:    DefaultMessageRate,
		MessageBurst:   DefaultMessageBurst,
	}

	// File
	if file.Server.Port != 0 {
		cfg.Port = file.Server.Port
	}
	if file.Server.MaxRoomMembers != nil {
		cfg.MaxRoomMembers = *file.Server.MaxRoomMembers
	}
	if file.Server.MaxMessageSize > 0 {
		cfg.MaxMessageSize = file.Server.MaxMessageSize
	}
	if file.Server.MessageRate != 0 {
		cfg.MessageRate = file.Server.MessageRate
	}
	if file.Server.MessageBurst > 0 {
		cfg.MessageBurst = file.Server.MessageBurst
	}

	// Environment
	if v, ok, err := envInt("PORT"); err != nil {
		return nil, err
	} else if ok {
		cfg.Port = v
	}
	if v, ok, err := envInt("STUDYSTIM_MAX_MEMBERS"); err != nil {
		return nil, err
	} else if ok {
		cfg.MaxRoomMembers = v
	}

	// Flags
	if opts.Port != 0 {
		cfg.Port = opts.Port
	}
	if opts.MaxRoomMembers != nil {
		cfg.MaxRoomMembers = *opts.MaxRoomMembers
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.MaxRoomMembers < 0 {
		return nil, fmt.Errorf("invalid max room members: %d", cfg.MaxRoomMembers)
	}
	return cfg, nil
}

// LoadClient reads client configuration with the same priority as
// LoadServer.
func LoadClient(opts Options) (*ClientConfig, error) {
	file, err := prepare(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	cfg := &ClientConfig{
		Target:               DefaultTarget,
		LocalURL:             first(os.Getenv("STUDYSTIM_LOCAL_URL"), file.Client.LocalURL, DefaultLocalURL),
		RemoteURL:            first(os.Getenv("STUDYSTIM_REMOTE_URL"), file.Client.RemoteURL, DefaultRemoteURL),
		ServerURL:            first(opts.ServerURL, os.Getenv("STUDYSTIM_SERVER"), file.Client.Server),
		Username:             first(opts.Username, os.Getenv("STUDYSTIM_USERNAME"), file.Client.Username),
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		ReconnectDelay:       DefaultReconnectDelay,
		STUNServer:           first(opts.STUNServer, os.Getenv("STUN_SERVER"), file.Client.STUNServer, DefaultSTUN),
		TURNUser:             first(opts.TURNUser, os.Getenv("TURN_USERNAME"), file.Client.TURNUser),
		TURNPass:             first(opts.TURNPass, os.Getenv("TURN_PASSWORD"), file.Client.TURNPass),
		ForceRelay:           opts.ForceRelay || file.Client.ForceRelay || envBool("STUDYSTIM_FORCE_RELAY"),
	}

	target := first(opts.Target, os.Getenv("STUDYSTIM_TARGET"), file.Client.Target)
	if target != "" {
		t, err := ParseTarget(target)
		if err != nil {
			return nil, err
		}
		cfg.Target = t
	}

	// TURN: flag > env > file, each a comma separated list
	switch {
	case opts.TURNServer != "":
		cfg.TURNServers = splitList(opts.TURNServer)
	case os.Getenv("TURN_SERVER") != "":
		cfg.TURNServers = splitList(os.Getenv("TURN_SERVER"))
	default:
		cfg.TURNServers = file.Client.TURNServers
	}

	// Reconnect attempts: flag > env > file > default
	if file.Client.MaxReconnectAttempts != nil {
		cfg.MaxReconnectAttempts = *file.Client.MaxReconnectAttempts
	}
	if v, ok, err := envInt("STUDYSTIM_RECONNECT_ATTEMPTS"); err != nil {
		return nil, err
	} else if ok {
		cfg.MaxReconnectAttempts = v
	}
	if opts.MaxReconnectAttempts != nil {
		cfg.MaxReconnectAttempts = *opts.MaxReconnectAttempts
	}

	// Reconnect delay: flag > env > file > default
	delay := first(os.Getenv("STUDYSTIM_RECONNECT_DELAY"), file.Client.ReconnectDelay)
	if delay != "" {
		d, err := time.ParseDuration(delay)
		if err != nil {
			return nil, fmt.Errorf("invalid reconnect delay %q: %w", delay, err)
		}
		cfg.ReconnectDelay = d
	}
	if opts.ReconnectDelay > 0 {
		cfg.ReconnectDelay = opts.ReconnectDelay
	}

	if cfg.MaxReconnectAttempts < 0 {
		return nil, fmt.Errorf("invalid reconnect attempts: %d", cfg.MaxReconnectAttempts)
	}
	if cfg.ReconnectDelay <= 0 {
		return nil, fmt.Errorf("invalid reconnect delay: %s", cfg.ReconnectDelay)
	}
	if _, err := url.Parse(cfg.WebSocketURL()); err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	return cfg, nil
}

// WebSocketURL returns the relay endpoint for the configured target.
func (c *ClientConfig) WebSocketURL() string {
	if c.ServerURL != "" {
		return c.ServerURL
	}
	if c.Target == TargetLocal {
		return c.LocalURL
	}
	return c.RemoteURL
}

// StatsURL returns the HTTP stats endpoint next to the websocket endpoint.
func (c *ClientConfig) StatsURL() (string, error) {
	u, err := url.Parse(c.WebSocketURL())
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimSuffix(u.Path, "/ws") + "/stats"
	u.RawQuery = ""
	return u.String(), nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *ClientConfig) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *ClientConfig) GetTURNServers() []string {
	if len(c.TURNServers) == 0 {
		return nil
	}
	return c.TURNServers
}

// GetTURNCredentials returns TURN username and password
func (c *ClientConfig) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// prepare loads .env (if present) and the TOML file (if any).
func prepare(path string) (*fileConfig, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	if path == "" {
		path = os.Getenv("STUDYSTIM_CONFIG")
	}

	file := &fileConfig{}
	if path == "" {
		return file, nil
	}
	if _, err := toml.DecodeFile(path, file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %s not found", path)
		}
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return file, nil
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func envInt(key string) (int, bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("environment variable %s is not an integer: %q", key, v)
	}
	return n, true, nil
}

func envBool(key string) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

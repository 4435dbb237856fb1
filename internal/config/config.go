package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BioHazard786/doorcall/internal/room"
	"github.com/BurntSushi/toml"
)

// Default configuration values
const (
	DefaultServer  = "wss://localhost:443/ws"
	DefaultTimeout = 20 * time.Second
	DefaultSTUN    = "stun:stun.l.google.com:19302"
	DefaultWidth   = 320
	DefaultHeight  = 240
	DefaultFPS     = 15
)

// Config holds application configuration
type Config struct {
	// ServerURL is the websocket endpoint of the rendezvous server
	ServerURL   string
	TLSInsecure bool

	// Room is a fixed room name; empty means generate one per call
	Room string

	// Timeout bounds every wait after the room has been created
	Timeout time.Duration

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	Media MediaConfig

	// WebURL, when set, is used to build a join link for the notified room
	WebURL     string
	WebhookURL string

	MetricsAddr string
	KeepGoing   bool
}

// MediaConfig controls local capture and remote recording.
type MediaConfig struct {
	Video       bool
	Audio       bool
	Width       int
	Height      int
	FPS         int
	ReceiveOnly bool
	RecordDir   string
}

// Options for loading config with CLI flag overrides
type Options struct {
	ConfigFile  string
	Server      string
	Room        string
	Timeout     time.Duration
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool
	TLSInsecure bool
	ReceiveOnly bool
	RecordDir   string
	WebURL      string
	WebhookURL  string
	MetricsAddr string
	KeepGoing   bool
}

// fileConfig mirrors the TOML config file layout.
type fileConfig struct {
	Server      string `toml:"server"`
	Room        string `toml:"room"`
	Timeout     string `toml:"timeout"`
	TLSInsecure bool   `toml:"tls_insecure"`
	MetricsAddr string `toml:"metrics_addr"`
	KeepGoing   bool   `toml:"keep_going"`

	ICE struct {
		STUNServer string `toml:"stun_server"`
		TURNServer string `toml:"turn_server"`
		TURNUser   string `toml:"turn_user"`
		TURNPass   string `toml:"turn_pass"`
		ForceRelay bool   `toml:"force_relay"`
	} `toml:"ice"`

	Media struct {
		Video       *bool  `toml:"video"`
		Audio       *bool  `toml:"audio"`
		Width       int    `toml:"width"`
		Height      int    `toml:"height"`
		FPS         int    `toml:"fps"`
		ReceiveOnly bool   `toml:"receive_only"`
		RecordDir   string `toml:"record_dir"`
	} `toml:"media"`

	Notify struct {
		WebURL     string `toml:"web_url"`
		WebhookURL string `toml:"webhook_url"`
	} `toml:"notify"`
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Config file (TOML), if one is given
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	var fc fileConfig
	if opts.ConfigFile != "" {
		if _, err := toml.DecodeFile(opts.ConfigFile, &fc); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		ServerURL:   pick(opts.Server, os.Getenv("DOORCALL_SERVER"), fc.Server, DefaultServer),
		Room:        pick(opts.Room, os.Getenv("DOORCALL_ROOM"), fc.Room, ""),
		STUNServer:  pick(opts.STUNServer, os.Getenv("STUN_SERVER"), fc.ICE.STUNServer, DefaultSTUN),
		TURNServer:  pick(opts.TURNServer, os.Getenv("TURN_SERVER"), fc.ICE.TURNServer, ""),
		TURNUser:    pick(opts.TURNUser, os.Getenv("TURN_USERNAME"), fc.ICE.TURNUser, ""),
		TURNPass:    pick(opts.TURNPass, os.Getenv("TURN_PASSWORD"), fc.ICE.TURNPass, ""),
		ForceRelay:  opts.ForceRelay || fc.ICE.ForceRelay,
		TLSInsecure: opts.TLSInsecure || envBool("DOORCALL_TLS_INSECURE") || fc.TLSInsecure,
		WebURL:      pick(opts.WebURL, os.Getenv("DOORCALL_WEB_URL"), fc.Notify.WebURL, ""),
		WebhookURL:  pick(opts.WebhookURL, os.Getenv("DOORCALL_WEBHOOK_URL"), fc.Notify.WebhookURL, ""),
		MetricsAddr: pick(opts.MetricsAddr, os.Getenv("DOORCALL_METRICS_ADDR"), fc.MetricsAddr, ""),
		KeepGoing:   opts.KeepGoing || fc.KeepGoing,
		Media: MediaConfig{
			Video:       boolOr(fc.Media.Video, true),
			Audio:       boolOr(fc.Media.Audio, true),
			Width:       intOr(fc.Media.Width, DefaultWidth),
			Height:      intOr(fc.Media.Height, DefaultHeight),
			FPS:         intOr(fc.Media.FPS, DefaultFPS),
			ReceiveOnly: opts.ReceiveOnly || fc.Media.ReceiveOnly,
			RecordDir:   pick(opts.RecordDir, os.Getenv("DOORCALL_RECORD_DIR"), fc.Media.RecordDir, ""),
		},
	}

	timeout, err := loadTimeout(opts.Timeout, os.Getenv("DOORCALL_TIMEOUT"), fc.Timeout)
	if err != nil {
		return nil, err
	}
	cfg.Timeout = timeout

	serverURL, err := NormalizeServerURL(cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	cfg.ServerURL = serverURL

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that flags alone cannot express.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.ForceRelay && c.GetTURNServers() == nil {
		return errors.New("cannot force relay mode without TURN server configured")
	}
	if c.Media.Width < 0 || c.Media.Height < 0 || c.Media.FPS < 0 {
		return errors.New("media dimensions must not be negative")
	}
	if c.Room != "" && !room.Valid(c.Room) {
		return fmt.Errorf("invalid room name %q: use letters, digits, '-', '_' or '.'", c.Room)
	}
	return nil
}

// NormalizeServerURL maps http(s) to ws(s) and defaults the path to /ws.
func NormalizeServerURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server URL %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q: missing host", raw)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// GetRoomLink returns the webapp URL for a room, or "" without a web URL
func (c *Config) GetRoomLink(room string) string {
	if c.WebURL == "" {
		return ""
	}
	return strings.TrimSuffix(c.WebURL, "/") + "/?room=" + url.QueryEscape(room)
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
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func loadTimeout(flag time.Duration, env, file string) (time.Duration, error) {
	if flag != 0 {
		return flag, nil
	}
	for _, raw := range []string{env, file} {
		if raw == "" {
			continue
		}
		d, err := parseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid timeout %q: %w", raw, err)
		}
		return d, nil
	}
	return DefaultTimeout, nil
}

// parseDuration accepts Go duration strings and bare seconds.
func parseDuration(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

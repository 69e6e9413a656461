package blario

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectDelay       = 1 * time.Second
	DefaultMaxReconnectDelay    = 30 * time.Second
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultQueueLimit           = 256
)

// Config holds connection parameters for one chat session. A Config is fixed
// once passed to New; starting over requires a new Client.
type Config struct {
	// BaseURL is the backend endpoint, e.g. "https://api.blar.io".
	// http(s) schemes are upgraded to ws(s) for the socket URL.
	BaseURL string `env:"BASE_URL"`

	// PublishableKey is the opaque key identifying the embedding app.
	PublishableKey string `env:"PUBLISHABLE_KEY"`

	// RoomID scopes the conversation. Generated as a UUID when empty.
	RoomID string `env:"ROOM_ID"`

	// UserID optionally identifies the end user on outbound messages.
	UserID string `env:"USER_ID"`

	// MaxReconnectAttempts caps automatic reconnection after unclean
	// closes. Once exceeded the session is failed for good.
	MaxReconnectAttempts int `env:"MAX_RECONNECT_ATTEMPTS"`

	// ReconnectDelay is the base backoff delay; attempt n waits
	// ReconnectDelay * 2^n, capped at MaxReconnectDelay.
	ReconnectDelay    time.Duration `env:"RECONNECT_DELAY"`
	MaxReconnectDelay time.Duration `env:"MAX_RECONNECT_DELAY"`

	// HeartbeatInterval is reserved; the default policy sends no
	// heartbeats.
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL"`
}

// ConfigFromEnv loads a Config from BLARIO_-prefixed environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "BLARIO_"}); err != nil {
		return Config{}, fmt.Errorf("parse env config: %w", err)
	}
	return cfg, nil
}

// withDefaults fills zero fields and generates a room ID if absent.
func (cfg Config) withDefaults() Config {
	if cfg.RoomID == "" {
		cfg.RoomID = uuid.NewString()
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.MaxReconnectDelay == 0 {
		cfg.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return cfg
}

func (cfg Config) validate() error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("config: BaseURL is required")
	}
	if cfg.PublishableKey == "" {
		return fmt.Errorf("config: PublishableKey is required")
	}
	return nil
}

// socketURL builds the wire URL:
// {ws|wss}://{host}/ws/support/chat/{roomID}/?publishable_key={key}
func (cfg Config) socketURL() (string, error) {
	base := cfg.BaseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("config: parse base URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("config: unsupported scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/ws/support/chat/" + cfg.RoomID + "/"
	q := url.Values{}
	q.Set("publishable_key", cfg.PublishableKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	Presence  PresenceConfig  `mapstructure:"presence" yaml:"presence"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	NATS      NATSConfig      `mapstructure:"nats" yaml:"nats"`
	LiveKit   LiveKitConfig   `mapstructure:"livekit" yaml:"livekit"`
}

// PresenceConfig tunes the room presence engine.
type PresenceConfig struct {
	GracePeriod          time.Duration `mapstructure:"grace_period" yaml:"grace_period"`
	BroadcastInterval    time.Duration `mapstructure:"broadcast_interval" yaml:"broadcast_interval"`
	DefaultRoomCapacity  int           `mapstructure:"default_room_capacity" yaml:"default_room_capacity"`
	NearbyRadius         float64       `mapstructure:"nearby_radius" yaml:"nearby_radius"`
	VoiceChannelCapacity int           `mapstructure:"voice_channel_capacity" yaml:"voice_channel_capacity"`
	SpawnX               float64       `mapstructure:"spawn_x" yaml:"spawn_x"`
	SpawnY               float64       `mapstructure:"spawn_y" yaml:"spawn_y"`
	StoreTimeout         time.Duration `mapstructure:"store_timeout" yaml:"store_timeout"`
	JournalSize          int           `mapstructure:"journal_size" yaml:"journal_size"`
}

// RateLimitConfig holds sliding-window limits. RedisAddr switches the
// per-action limiters to a shared Redis backend.
type RateLimitConfig struct {
	VoiceMax         int           `mapstructure:"voice_max" yaml:"voice_max"`
	VoiceWindow      time.Duration `mapstructure:"voice_window" yaml:"voice_window"`
	ChatMax          int           `mapstructure:"chat_max" yaml:"chat_max"`
	ChatWindow       time.Duration `mapstructure:"chat_window" yaml:"chat_window"`
	InboundPerSecond int           `mapstructure:"inbound_per_second" yaml:"inbound_per_second"`
	RedisAddr        string        `mapstructure:"redis_addr" yaml:"redis_addr"`
}

// NATSConfig enables domain event publication when URL is set.
type NATSConfig struct {
	URL           string `mapstructure:"url" yaml:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix" yaml:"subject_prefix"`
}

// LiveKitConfig enables voice channel media credentials when all fields are set.
type LiveKitConfig struct {
	URL       string `mapstructure:"url" yaml:"url"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	APISecret string `mapstructure:"api_secret" yaml:"api_secret"`
}

// Enabled reports whether LiveKit credentials are fully configured.
func (c LiveKitConfig) Enabled() bool {
	return c.URL != "" && c.APIKey != "" && c.APISecret != ""
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		DatabasePath:      "plaza.db",
		MaxMessageBytes:   64 << 10,
		JWTIssuer:         "plaza",
		JWTAudience:       "plaza",
		Presence: PresenceConfig{
			GracePeriod:          5 * time.Second,
			BroadcastInterval:    500 * time.Millisecond,
			DefaultRoomCapacity:  20,
			NearbyRadius:         200,
			VoiceChannelCapacity: 20,
			SpawnX:               100,
			SpawnY:               100,
			StoreTimeout:         3 * time.Second,
			JournalSize:          1024,
		},
		RateLimit: RateLimitConfig{
			VoiceMax:         20,
			VoiceWindow:      10 * time.Second,
			ChatMax:          30,
			ChatWindow:       10 * time.Second,
			InboundPerSecond: 60,
		},
		NATS: NATSConfig{
			SubjectPrefix: "plaza",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the top-level server fields exposed as CLI flags are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
}

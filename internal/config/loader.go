package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "PLAZA"
	envConfigDefaultPath = "PLAZA_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, configPath, err
	}

	return cfg, configPath, nil
}

// Validate rejects values the presence engine cannot run with.
func (c Config) Validate() error {
	p := c.Presence
	switch {
	case p.DefaultRoomCapacity <= 0:
		return errors.New("config: presence.default_room_capacity must be positive")
	case p.VoiceChannelCapacity <= 0:
		return errors.New("config: presence.voice_channel_capacity must be positive")
	case p.BroadcastInterval <= 0:
		return errors.New("config: presence.broadcast_interval must be positive")
	case p.GracePeriod <= 0:
		return errors.New("config: presence.grace_period must be positive")
	case p.NearbyRadius <= 0:
		return errors.New("config: presence.nearby_radius must be positive")
	}
	return nil
}

// setDefaults registers every key so env vars resolve even without a file entry.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("read_header_timeout", cfg.ReadHeaderTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("database_path", cfg.DatabasePath)
	v.SetDefault("max_message_bytes", cfg.MaxMessageBytes)
	v.SetDefault("jwt_secret", cfg.JWTSecret)
	v.SetDefault("jwt_issuer", cfg.JWTIssuer)
	v.SetDefault("jwt_audience", cfg.JWTAudience)

	v.SetDefault("presence.grace_period", cfg.Presence.GracePeriod)
	v.SetDefault("presence.broadcast_interval", cfg.Presence.BroadcastInterval)
	v.SetDefault("presence.default_room_capacity", cfg.Presence.DefaultRoomCapacity)
	v.SetDefault("presence.nearby_radius", cfg.Presence.NearbyRadius)
	v.SetDefault("presence.voice_channel_capacity", cfg.Presence.VoiceChannelCapacity)
	v.SetDefault("presence.spawn_x", cfg.Presence.SpawnX)
	v.SetDefault("presence.spawn_y", cfg.Presence.SpawnY)
	v.SetDefault("presence.store_timeout", cfg.Presence.StoreTimeout)
	v.SetDefault("presence.journal_size", cfg.Presence.JournalSize)

	v.SetDefault("rate_limit.voice_max", cfg.RateLimit.VoiceMax)
	v.SetDefault("rate_limit.voice_window", cfg.RateLimit.VoiceWindow)
	v.SetDefault("rate_limit.chat_max", cfg.RateLimit.ChatMax)
	v.SetDefault("rate_limit.chat_window", cfg.RateLimit.ChatWindow)
	v.SetDefault("rate_limit.inbound_per_second", cfg.RateLimit.InboundPerSecond)
	v.SetDefault("rate_limit.redis_addr", cfg.RateLimit.RedisAddr)

	v.SetDefault("nats.url", cfg.NATS.URL)
	v.SetDefault("nats.subject_prefix", cfg.NATS.SubjectPrefix)

	v.SetDefault("livekit.url", cfg.LiveKit.URL)
	v.SetDefault("livekit.api_key", cfg.LiveKit.APIKey)
	v.SetDefault("livekit.api_secret", cfg.LiveKit.APISecret)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

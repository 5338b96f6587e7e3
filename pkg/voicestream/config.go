package voicestream

import (
	"fmt"
	"os"
	"reflect"

	"github.com/spf13/viper"

	"github.com/mindgraph/voicestream/pkg/configutil"
	"github.com/mindgraph/voicestream/pkg/protocol"
)

// Config is the file-backed configuration for a streaming client.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Session    SessionConfig    `mapstructure:"session"`
	Connection ConnectionConfig `mapstructure:"connection"`
	Audio      AudioConfig      `mapstructure:"audio"`
	Vad        map[string]any   `mapstructure:"vad"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Privacy    PrivacyConfig    `mapstructure:"privacy"`
	LogLevel   string           `mapstructure:"log_level"`
	LogFormat  string           `mapstructure:"log_format"`
}

type ServerConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	AuthToken       string `mapstructure:"auth_token"`
	TicketTimeoutMS int    `mapstructure:"ticket_timeout_ms"`
}

type SessionConfig struct {
	GraphID    string            `mapstructure:"graph_id"`
	BranchID   string            `mapstructure:"branch_id"`
	Pipeline   string            `mapstructure:"pipeline"`
	ScribeMode bool              `mapstructure:"scribe_mode"`
	Metadata   map[string]string `mapstructure:"metadata"`
}

type ConnectionConfig struct {
	HandshakeTimeoutMS   int `mapstructure:"handshake_timeout_ms"`
	ReconnectBaseMS      int `mapstructure:"reconnect_base_ms"`
	ReconnectMaxAttempts int `mapstructure:"reconnect_max_attempts"`
}

type AudioConfig struct {
	ChunkIntervalMS int  `mapstructure:"chunk_interval_ms"`
	ChunkSize       *int `mapstructure:"chunk_size"`
}

type MetricsConfig struct {
	Sink   string `mapstructure:"sink"`
	Path   string `mapstructure:"path"`
	Buffer *int   `mapstructure:"buffer"`
}

type PrivacyConfig struct {
	RedactPII *bool `mapstructure:"redact_pii"`
}

// vadKeys lists the keys a vad override block may carry.
var vadKeys = []string{
	"engine",
	"speech_threshold",
	"end_silence_ms",
	"min_speech_ms",
	"pre_roll_ms",
	"max_utterance_ms",
}

// LoadConfig reads a config file, applies defaults, expands ${ENV} references
// and validates the result.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("server.ticket_timeout_ms", 5000)
	v.SetDefault("session.branch_id", "main")
	v.SetDefault("session.pipeline", string(protocol.PipelineAgent))
	v.SetDefault("connection.handshake_timeout_ms", 8000)
	v.SetDefault("connection.reconnect_base_ms", 1000)
	v.SetDefault("connection.reconnect_max_attempts", 5)
	v.SetDefault("audio.chunk_interval_ms", 100)
	v.SetDefault("metrics.sink", "none")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)
	cfg.Vad = expandSettings(cfg.Vad)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks required fields and the vad override block.
func (c *Config) Validate() error {
	if err := configutil.RequireString(c.Server.BaseURL, "server.base_url"); err != nil {
		return err
	}
	if err := configutil.RequireString(c.Session.GraphID, "session.graph_id"); err != nil {
		return err
	}
	if !protocol.Pipeline(c.Session.Pipeline).Valid() {
		return fmt.Errorf("session.pipeline must be %q or %q", protocol.PipelineAgent, protocol.PipelineSTT)
	}
	if err := configutil.CheckKeys(c.Vad, vadKeys...); err != nil {
		return fmt.Errorf("vad: %w", err)
	}
	return nil
}

// VadConfig decodes the vad override block. Zero fields fall back to the
// pipeline defaults when the start frame is built.
func (c *Config) VadConfig() (protocol.VadConfig, error) {
	var out protocol.VadConfig
	if err := configutil.Decode(c.Vad, &out); err != nil {
		return protocol.VadConfig{}, fmt.Errorf("vad: %w", err)
	}
	return out, nil
}

// StartParams builds the session start parameters from config.
func (c *Config) StartParams() protocol.StartParams {
	return protocol.StartParams{
		GraphID:    c.Session.GraphID,
		BranchID:   c.Session.BranchID,
		ScribeMode: c.Session.ScribeMode,
		Metadata:   c.Session.Metadata,
		Pipeline:   protocol.Pipeline(c.Session.Pipeline),
	}
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				val := v.MapIndex(key)
				v.SetMapIndex(key, reflect.ValueOf(os.ExpandEnv(val.String())))
			}
		}
	}
}

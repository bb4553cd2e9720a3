package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "COLLABNOTE"

// AppConfig captures runtime configuration for the server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	JWTSecret      string
	DatabaseURL    string
	LogLevel       string
	Socket         SocketConfig
}

// SocketConfig tunes the realtime gateway.
type SocketConfig struct {
	Path            string
	TypingTTL       time.Duration
	SendBuffer      int
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageBytes int64
}

func NewViper() *viper.Viper {
	v := viper.New()
	ApplyDefaults(v)
	return v
}

// ApplyDefaults configures defaults and env bindings on v.
func ApplyDefaults(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.address", ":8080")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("socket.path", "/api/socket")
	v.SetDefault("socket.typing_ttl", 2*time.Second)
	v.SetDefault("socket.send_buffer", 256)
	v.SetDefault("socket.ping_interval", 54*time.Second)
	v.SetDefault("socket.pong_wait", 60*time.Second)
	v.SetDefault("socket.write_wait", 10*time.Second)
	v.SetDefault("socket.max_message_bytes", 64*1024)
}

// Load reads and validates configuration from v.
func Load(v *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    v.GetString("http.address"),
		AllowedOrigins: splitList(v.GetStringSlice("cors.allowed_origins")),
		JWTSecret:      v.GetString("auth.jwt_secret"),
		DatabaseURL:    v.GetString("database.url"),
		LogLevel:       v.GetString("log.level"),
		Socket: SocketConfig{
			Path:            v.GetString("socket.path"),
			TypingTTL:       v.GetDuration("socket.typing_ttl"),
			SendBuffer:      v.GetInt("socket.send_buffer"),
			PingInterval:    v.GetDuration("socket.ping_interval"),
			PongWait:        v.GetDuration("socket.pong_wait"),
			WriteWait:       v.GetDuration("socket.write_wait"),
			MaxMessageBytes: v.GetInt64("socket.max_message_bytes"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// splitList accepts comma and whitespace separated entries. Viper only
// splits environment values on whitespace.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("database.url is required")
	}
	if !strings.HasPrefix(c.Socket.Path, "/") {
		return fmt.Errorf("socket.path must start with /")
	}
	if c.Socket.TypingTTL <= 0 {
		return fmt.Errorf("socket.typing_ttl must be positive")
	}
	if c.Socket.SendBuffer <= 0 {
		return fmt.Errorf("socket.send_buffer must be positive")
	}
	if c.Socket.PongWait <= 0 || c.Socket.PingInterval <= 0 || c.Socket.PingInterval >= c.Socket.PongWait {
		return fmt.Errorf("socket.ping_interval must be positive and shorter than socket.pong_wait")
	}
	if c.Socket.WriteWait <= 0 {
		return fmt.Errorf("socket.write_wait must be positive")
	}
	if c.Socket.MaxMessageBytes <= 0 {
		return fmt.Errorf("socket.max_message_bytes must be positive")
	}
	return nil
}

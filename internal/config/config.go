// Package config loads server configuration from defaults, an optional YAML
// file and CHAT_* environment variables, in increasing order of priority.
package config

import "time"

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Protocol ProtocolConfig `koanf:"protocol"`
	Presence PresenceConfig `koanf:"presence"`
	Rooms    RoomsConfig    `koanf:"rooms"`
	Store    StoreConfig    `koanf:"store"`
	Auth     AuthConfig     `koanf:"auth"`
	Cluster  ClusterConfig  `koanf:"cluster"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures listeners and per-connection limits.
type ServerConfig struct {
	// Addr serves raw TCP frames, WebSocket and HTTP on one port.
	Addr string `koanf:"addr"`
	// TCPAddr optionally opens a second listener for raw TCP only.
	TCPAddr         string        `koanf:"tcp_addr"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	SendQueueSize   int           `koanf:"send_queue_size"`
	// AuthTimeout closes connections that never log in.
	AuthTimeout time.Duration `koanf:"auth_timeout"`
	RateLimit   float64       `koanf:"rate_limit"`
	RateBurst   int           `koanf:"rate_burst"`
}

// ProtocolConfig configures the frame codec.
type ProtocolConfig struct {
	MaxBodySize int `koanf:"max_body_size"`
}

// PresenceConfig configures the presence engine and sweeper.
type PresenceConfig struct {
	// Policy is "multi" (any number of sessions per user) or "single".
	Policy        string        `koanf:"policy"`
	Timeout       time.Duration `koanf:"timeout"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	Stripes       int           `koanf:"stripes"`
}

// RoomsConfig selects the room membership backend.
type RoomsConfig struct {
	// Store is "memory", "redis" or "badger".
	Store         string `koanf:"store"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	BadgerPath    string `koanf:"badger_path"`
	Stripes       int    `koanf:"stripes"`
}

// StoreConfig configures message history and user persistence.
type StoreConfig struct {
	DSN          string `koanf:"dsn"`
	PersistQueue int    `koanf:"persist_queue"`
}

// AuthConfig configures token issuing and verification.
type AuthConfig struct {
	JWTSecret  string        `koanf:"jwt_secret"`
	TokenTTL   time.Duration `koanf:"token_ttl"`
	Issuer     string        `koanf:"issuer"`
	BcryptCost int           `koanf:"bcrypt_cost"`
}

// ClusterConfig configures cross-node fan-out over NATS.
type ClusterConfig struct {
	Enabled bool   `koanf:"enabled"`
	NATSURL string `koanf:"nats_url"`
	Subject string `koanf:"subject"`
	NodeID  string `koanf:"node_id"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			SendQueueSize:   256,
			AuthTimeout:     30 * time.Second,
			RateLimit:       50,
			RateBurst:       100,
		},
		Protocol: ProtocolConfig{
			MaxBodySize: 1 << 20,
		},
		Presence: PresenceConfig{
			Policy:        "multi",
			Timeout:       90 * time.Second,
			SweepInterval: 15 * time.Second,
			Stripes:       64,
		},
		Rooms: RoomsConfig{
			Store:      "memory",
			RedisAddr:  "localhost:6379",
			BadgerPath: "data/rooms",
			Stripes:    64,
		},
		Store: StoreConfig{
			DSN:          "framechat.db",
			PersistQueue: 1024,
		},
		Auth: AuthConfig{
			TokenTTL:   24 * time.Hour,
			Issuer:     "framechat",
			BcryptCost: 12,
		},
		Cluster: ClusterConfig{
			NATSURL: "nats://127.0.0.1:4222",
			Subject: "framechat.deliveries",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

package config

import (
	"errors"
	"fmt"

	"github.com/omochice/framechat/internal/logging"
)

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.SendQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("server.send_queue_size must be positive, got %d", c.Server.SendQueueSize))
	}
	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		errs = append(errs, errors.New("server.rate_limit and server.rate_burst must not be negative"))
	}
	if c.Protocol.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("protocol.max_body_size must be positive, got %d", c.Protocol.MaxBodySize))
	}

	switch c.Presence.Policy {
	case "multi", "single":
	default:
		errs = append(errs, fmt.Errorf("presence.policy must be multi or single, got %q", c.Presence.Policy))
	}
	if c.Presence.Timeout <= 0 {
		errs = append(errs, errors.New("presence.timeout must be positive"))
	}
	if c.Presence.SweepInterval <= 0 || c.Presence.SweepInterval > c.Presence.Timeout {
		errs = append(errs, fmt.Errorf("presence.sweep_interval must be in (0, %s], got %s",
			c.Presence.Timeout, c.Presence.SweepInterval))
	}

	switch c.Rooms.Store {
	case "memory":
	case "redis":
		if c.Rooms.RedisAddr == "" {
			errs = append(errs, errors.New("rooms.redis_addr is required for the redis store"))
		}
	case "badger":
		if c.Rooms.BadgerPath == "" {
			errs = append(errs, errors.New("rooms.badger_path is required for the badger store"))
		}
	default:
		errs = append(errs, fmt.Errorf("rooms.store must be memory, redis or badger, got %q", c.Rooms.Store))
	}

	if c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn is required"))
	}
	if c.Store.PersistQueue <= 0 {
		errs = append(errs, errors.New("store.persist_queue must be positive"))
	}

	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 characters"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}

	if c.Cluster.Enabled && c.Cluster.NATSURL == "" {
		errs = append(errs, errors.New("cluster.nats_url is required when clustering is enabled"))
	}

	if !logging.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level %q is not a known level", c.Logging.Level))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

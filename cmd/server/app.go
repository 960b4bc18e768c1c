package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/thejerf/suture/v4"

	"github.com/omochice/framechat/internal/auth"
	"github.com/omochice/framechat/internal/chat"
	"github.com/omochice/framechat/internal/cluster"
	"github.com/omochice/framechat/internal/config"
	"github.com/omochice/framechat/internal/httpapi"
	"github.com/omochice/framechat/internal/logging"
	"github.com/omochice/framechat/internal/presence"
	"github.com/omochice/framechat/internal/room"
	"github.com/omochice/framechat/internal/router"
	"github.com/omochice/framechat/internal/server"
	"github.com/omochice/framechat/internal/store"
	"github.com/omochice/framechat/internal/transport/tcp"
	"github.com/omochice/framechat/internal/transport/ws"
	"github.com/omochice/framechat/pkg/protocol"
)

const redisPingTimeout = 5 * time.Second

// app holds the wired components and the services to supervise.
type app struct {
	hub     *chat.Hub
	rooms   *room.Registry
	db      *store.SQLStore
	relay   *cluster.Relay
	core    []suture.Service
	network []suture.Service
}

// status reports hub and presence counts to /healthz.
type status struct {
	*chat.Hub
	*presence.Engine
}

func build(cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	codec := protocol.NewCodec(nil, protocol.WithMaxBodySize(cfg.Protocol.MaxBodySize))

	a.db, err = store.Open(cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open message store: %w", err)
	}
	tokens := auth.NewJWTManager(auth.Config{
		Secret:   cfg.Auth.JWTSecret,
		TokenTTL: cfg.Auth.TokenTTL,
		Issuer:   cfg.Auth.Issuer,
	})
	accounts := store.NewAccountService(a.db, tokens, cfg.Auth.BcryptCost)
	persister := store.NewPersister(a.db, store.PersisterConfig{QueueSize: cfg.Store.PersistQueue})

	roomStore, err := openRoomStore(cfg.Rooms)
	if err != nil {
		return nil, err
	}
	a.rooms = room.NewRegistry(roomStore, cfg.Rooms.Stripes)

	engine := presence.NewEngine(presence.Config{
		Policy:  presence.Policy(cfg.Presence.Policy),
		Timeout: cfg.Presence.Timeout,
		Stripes: cfg.Presence.Stripes,
	})

	var publisher router.Publisher
	if cfg.Cluster.Enabled {
		a.relay, err = cluster.Connect(cfg.Cluster.NATSURL, cfg.Cluster.Subject, cfg.Cluster.NodeID)
		if err != nil {
			return nil, fmt.Errorf("connect cluster relay: %w", err)
		}
		publisher = a.relay
	}
	broadcaster := router.NewBroadcaster(codec, engine, publisher)
	if a.relay != nil {
		a.relay.Handle(broadcaster.HandleRelay)
	}

	rt := router.New(router.Deps{
		Codec:       codec,
		Presence:    engine,
		Rooms:       a.rooms,
		Auth:        tokens,
		Credentials: accounts,
		History:     a.db,
		Users:       a.db,
		Persister:   persister,
		Broadcaster: broadcaster,
	})

	a.hub = chat.NewHub(codec, rt, chat.HubConfig{
		Session: chat.SessionConfig{
			QueueSize: cfg.Server.SendQueueSize,
			RateLimit: cfg.Server.RateLimit,
			RateBurst: cfg.Server.RateBurst,
		},
		WriteTimeout: cfg.Server.WriteTimeout,
		AuthTimeout:  cfg.Server.AuthTimeout,
	})

	api := httpapi.New(httpapi.Deps{
		Status:    status{Hub: a.hub, Engine: engine},
		Rooms:     a.rooms,
		Admin:     rt,
		Auth:      tokens,
		History:   a.db,
		Accounts:  accounts,
		WebSocket: ws.Handler(a.hub),
	})

	a.core = append(a.core,
		engine.Notifier(),
		presence.NewSweeper(cfg.Presence.SweepInterval, engine, a.hub),
		persister,
	)
	if a.relay != nil {
		a.core = append(a.core, a.relay)
	}

	a.network = append(a.network, server.NewUnifiedServer(cfg.Server.Addr, a.hub, api))
	if cfg.Server.TCPAddr != "" {
		a.network = append(a.network, tcp.New(cfg.Server.TCPAddr, a.hub))
	}
	return a, nil
}

func openRoomStore(cfg config.RoomsConfig) (room.Store, error) {
	switch cfg.Store {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		return room.NewRedisStore(client, room.DefaultRedisPrefix), nil
	case "badger":
		s, err := room.OpenBadgerStore(cfg.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		return s, nil
	default:
		return room.NewMemoryStore(), nil
	}
}

// close releases stores and connections. Services must have stopped.
func (a *app) close() {
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			logging.Warn().Err(err).Msg("close cluster relay")
		}
	}
	if a.rooms != nil {
		if err := a.rooms.Close(); err != nil {
			logging.Warn().Err(err).Msg("close room store")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logging.Warn().Err(err).Msg("close message store")
		}
	}
}

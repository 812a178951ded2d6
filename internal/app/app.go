package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/plaza-server/internal/auth"
	"github.com/vovakirdan/plaza-server/internal/callengine/livekit"
	"github.com/vovakirdan/plaza-server/internal/config"
	"github.com/vovakirdan/plaza-server/internal/core"
	"github.com/vovakirdan/plaza-server/internal/eventbus"
	applog "github.com/vovakirdan/plaza-server/internal/log"
	"github.com/vovakirdan/plaza-server/internal/ratelimit"
	"github.com/vovakirdan/plaza-server/internal/store"
	"github.com/vovakirdan/plaza-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/plaza-server/internal/transport/http"
)

const redisKeyPrefix = "plaza:rl:"

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	publisher       eventbus.Publisher
	redis           *redis.Client
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	log := applog.Module(logger, "app")

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	log.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		publisher:       eventbus.Nop{},
		log:             log,
	}

	opts := core.Options{
		Logger:            logger,
		GracePeriod:       cfg.Presence.GracePeriod,
		BroadcastInterval: cfg.Presence.BroadcastInterval,
		DefaultCapacity:   cfg.Presence.DefaultRoomCapacity,
		NearbyRadius:      cfg.Presence.NearbyRadius,
		VoiceCapacity:     cfg.Presence.VoiceChannelCapacity,
		Spawn:             core.Position{X: cfg.Presence.SpawnX, Y: cfg.Presence.SpawnY},
		StoreTimeout:      cfg.Presence.StoreTimeout,
		JournalSize:       cfg.Presence.JournalSize,
	}

	rl := cfg.RateLimit
	if rl.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := ratelimit.Connect(ctx, rl.RedisAddr)
		cancel()
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init rate limiter: %w", err)
		}
		a.redis = client
		opts.VoiceLimiter = ratelimit.NewRedis(client, redisKeyPrefix, rl.VoiceMax, rl.VoiceWindow, nil)
		opts.ChatLimiter = ratelimit.NewRedis(client, redisKeyPrefix, rl.ChatMax, rl.ChatWindow, nil)
		log.Info().Str("addr", rl.RedisAddr).Msg("redis rate limiting enabled")
	} else {
		opts.VoiceLimiter = ratelimit.NewSlidingWindow(rl.VoiceMax, rl.VoiceWindow, nil)
		opts.ChatLimiter = ratelimit.NewSlidingWindow(rl.ChatMax, rl.ChatWindow, nil)
	}

	if cfg.NATS.URL != "" {
		pub, err := eventbus.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, applog.Module(logger, "eventbus"))
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init event bus: %w", err)
		}
		a.publisher = pub
		log.Info().Str("url", cfg.NATS.URL).Msg("nats event publishing enabled")
	}
	opts.Publisher = a.publisher

	if cfg.LiveKit.Enabled() {
		opts.Calls = livekit.New(cfg.LiveKit.APIKey, cfg.LiveKit.APISecret, cfg.LiveKit.URL)
		log.Info().Str("url", cfg.LiveKit.URL).Msg("livekit voice credentials enabled")
	}

	var verifier *auth.Verifier
	if cfg.JWTSecret != "" {
		verifier = auth.NewVerifier(&auth.JWTConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		})
	} else {
		log.Warn().Msg("jwt_secret is empty, connections are not authenticated")
	}

	a.hub = core.NewHub(st, opts)
	a.server = transporthttp.NewServer(a.hub, st, verifier, cfg, applog.Module(logger, "transport.http"))
	return a, nil
}

// Run serves HTTP and runs the hub until ctx is cancelled or the server fails.
// The hub outlives the server so in-flight sessions disconnect cleanly.
func (a *App) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		a.hub.Run(hubCtx)
	}()

	g, gctx := errgroup.WithContext(ctx)
	// Hijacked WebSocket connections are not tracked by Shutdown; their
	// request contexts end with gctx instead.
	a.server.BaseContext = func(net.Listener) context.Context { return gctx }

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	err := g.Wait()
	stopHub()
	<-hubDone
	a.cleanup()
	return err
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close event bus")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/investable/accessgate/internal/accessgate/types"
	"github.com/investable/accessgate/internal/db"
	"github.com/investable/accessgate/internal/gate"
	"github.com/investable/accessgate/internal/ledgerclient"
	"github.com/investable/accessgate/internal/logging"
	"github.com/investable/accessgate/internal/scheduler"
	"github.com/investable/accessgate/internal/statuscache"
)

// clientEnv is the wiring shared by the client commands.
type clientEnv struct {
	logger  *zap.Logger
	ledger  *ledgerclient.Client
	cache   *statuscache.Cache
	closers []func()
}

func openClient(ctx context.Context) (*clientEnv, error) {
	logger, err := logging.New(cfg.LogLevel, "accessgate", cfg.Env, "stderr")
	if err != nil {
		return nil, err
	}
	env := &clientEnv{logger: logger}
	env.closers = append(env.closers, func() { _ = logger.Sync() })

	opts := []ledgerclient.Option{ledgerclient.WithTimeout(cfg.Client.FetchTimeout)}
	if id := identityOrEmpty(); id != "" {
		opts = append(opts, ledgerclient.WithPrincipal(id))
	}
	env.ledger = ledgerclient.New(cfg.Client.LedgerURL, opts...)

	backend, err := env.openBackend(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.cache = statuscache.New(backend,
		statuscache.WithFreshness(cfg.Client.Cache.Freshness),
		statuscache.WithLogger(logger),
	)
	return env, nil
}

func (e *clientEnv) openBackend(ctx context.Context) (statuscache.Backend, error) {
	cc := cfg.Client.Cache
	switch strings.ToLower(cc.Backend) {
	case "memory":
		return statuscache.NewMemoryBackend(), nil

	case "", "sqlite":
		conn, err := db.Open(ctx, db.Config{Path: cc.Path, Env: cfg.Env, Schema: db.SchemaCache})
		if err != nil {
			return nil, fmt.Errorf("open status cache: %w", err)
		}
		w := db.NewWorker(conn)
		e.closers = append(e.closers, func() {
			w.Close()
			_ = conn.Close()
		})
		return statuscache.NewSQLiteBackend(conn, w), nil

	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cc.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cc.RedisAddr, err)
		}
		e.closers = append(e.closers, func() { _ = client.Close() })
		return statuscache.NewRedisBackend(client, cc.RedisPrefix, cc.Freshness), nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cc.Backend)
}

func (e *clientEnv) scheduler() *scheduler.Scheduler {
	return scheduler.New(e.cache, e.ledger, scheduler.Config{
		PollInterval: cfg.Client.PollInterval,
		FetchTimeout: cfg.Client.FetchTimeout,
	}, e.logger)
}

func (e *clientEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func policy() gate.Policy {
	return gate.Policy{AllowRerequestAfterDenial: cfg.Client.AllowRerequest}
}

func identityOrEmpty() string {
	if flagAs != "" {
		return types.NormalizeIdentity(flagAs)
	}
	return types.NormalizeIdentity(cfg.Client.Identity)
}

func identity() (string, error) {
	id := identityOrEmpty()
	if id == "" {
		return "", fmt.Errorf("no identity: pass --as or set client.identity")
	}
	return id, nil
}

func displayName() string {
	if flagName != "" {
		return flagName
	}
	if cfg.Client.Name != "" {
		return cfg.Client.Name
	}
	id := identityOrEmpty()
	if at := strings.IndexByte(id, '@'); at > 0 {
		return id[:at]
	}
	return id
}

func principalKind() (types.PrincipalKind, error) {
	raw := flagKind
	if raw == "" {
		raw = cfg.Client.Kind
	}
	k, ok := types.ParsePrincipalKind(raw)
	if !ok {
		return 0, fmt.Errorf("unknown principal kind %q", raw)
	}
	return k, nil
}

func describe(resourceID string, d gate.Decision) string {
	switch d.Mode {
	case gate.ModeLoading:
		return resourceID + ": loading"
	case gate.ModeFull:
		return resourceID + ": full access"
	}
	switch d.Indicator {
	case gate.IndicatorPending:
		return resourceID + ": redacted, request pending"
	case gate.IndicatorDenied:
		if d.CanSubmit {
			return resourceID + ": redacted, request denied (may request again)"
		}
		return resourceID + ": redacted, request denied"
	case gate.IndicatorRequestable:
		return resourceID + ": redacted, access can be requested"
	}
	return resourceID + ": redacted"
}

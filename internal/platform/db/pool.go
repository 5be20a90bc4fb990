package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

const applicationName = "appointment-server"

// PoolConfig tunes the shared connection pool. Zero values keep pgx defaults,
// except StatementTimeout which is only sent when positive.
type PoolConfig struct {
	URL              string
	MaxConns         int32
	MinConns         int32
	MaxConnIdleTime  time.Duration
	StatementTimeout time.Duration
	// Logger receives pgx warnings and errors when non-nil.
	Logger *zerolog.Logger
}

// NewPool opens the pool and verifies it with a ping.
func NewPool(ctx context.Context, pc PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(pc.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		cfg.MinConns = pc.MinConns
	}
	if pc.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pc.MaxConnIdleTime
	}
	cfg.HealthCheckPeriod = 30 * time.Second

	params := cfg.ConnConfig.RuntimeParams
	if params == nil {
		params = map[string]string{}
		cfg.ConnConfig.RuntimeParams = params
	}
	params["application_name"] = applicationName
	if pc.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(pc.StatementTimeout.Milliseconds(), 10)
	}
	if pc.Logger != nil {
		cfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   pgxLogger(pc.Logger.With().Str("component", "pgx").Logger()),
			LogLevel: tracelog.LogLevelWarn,
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// pgxLogger forwards pgx trace events to zerolog.
func pgxLogger(logger zerolog.Logger) tracelog.Logger {
	return tracelog.LoggerFunc(func(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
		var evt *zerolog.Event
		switch level {
		case tracelog.LogLevelError:
			evt = logger.Error()
		case tracelog.LogLevelWarn:
			evt = logger.Warn()
		case tracelog.LogLevelInfo:
			evt = logger.Info()
		default:
			evt = logger.Debug()
		}
		if tenant := TenantFromContext(ctx); tenant != "" {
			evt = evt.Str("tenant_id", tenant)
		}
		evt.Fields(data).Msg(msg)
	})
}

package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthPingTimeout = 5 * time.Second

// PoolStats is the pool section of the /health/db response.
type PoolStats struct {
	TotalConns    int32   `json:"total_conns"`
	IdleConns     int32   `json:"idle_conns"`
	AcquiredConns int32   `json:"acquired_conns"`
	MaxConns      int32   `json:"max_conns"`
	Utilization   float64 `json:"utilization"`
	AcquireCount  int64   `json:"acquire_count"`
	EmptyAcquires int64   `json:"empty_acquire_count"`
}

// DBHealth is the /health/db response body.
type DBHealth struct {
	Status    string    `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	Pool      PoolStats `json:"pool"`
}

func statsOf(pool *pgxpool.Pool) PoolStats {
	st := pool.Stat()
	ps := PoolStats{
		TotalConns:    st.TotalConns(),
		IdleConns:     st.IdleConns(),
		AcquiredConns: st.AcquiredConns(),
		MaxConns:      st.MaxConns(),
		AcquireCount:  st.AcquireCount(),
		EmptyAcquires: st.EmptyAcquireCount(),
	}
	if ps.MaxConns > 0 {
		ps.Utilization = float64(ps.AcquiredConns) / float64(ps.MaxConns)
	}
	return ps
}

// Pinger is the part of *pgxpool.Pool the health check uses.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler pings the database and reports pool usage. It answers 503
// when the ping fails.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return healthHandler(pool, func() PoolStats { return statsOf(pool) })
}

func healthHandler(p Pinger, stats func() PoolStats) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthPingTimeout)
		defer cancel()

		start := time.Now()
		err := p.Ping(ctx)
		body := DBHealth{
			Status:    "up",
			LatencyMS: time.Since(start).Milliseconds(),
			Pool:      stats(),
		}
		code := http.StatusOK
		if err != nil {
			body.Status = "down"
			body.Error = err.Error()
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, body)
	}
}

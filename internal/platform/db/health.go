package db

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 5 * time.Second

// Pinger is anything whose connectivity can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns pgxpool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// GetSQLStats maps database/sql statistics onto PoolStats. Waits stand in
// for acquisitions since database/sql does not count uncontended ones.
func GetSQLStats(sqlDB *sql.DB) *PoolStats {
	stat := sqlDB.Stats()
	return &PoolStats{
		TotalConns:      int32(stat.OpenConnections),
		IdleConns:       int32(stat.Idle),
		AcquiredConns:   int32(stat.InUse),
		MaxConns:        int32(stat.MaxOpenConnections),
		AcquireCount:    stat.WaitCount,
		AcquireDuration: stat.WaitDuration.String(),
		Healthy:         stat.OpenConnections > 0,
	}
}

// HealthInfo describes what GET /health reports on.
type HealthInfo struct {
	Driver             string
	Storage            Pinger
	HealthieConfigured bool
	HealthieURL        string
}

type storageHealth struct {
	Driver    string `json:"driver"`
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

type healthieHealth struct {
	Configured bool   `json:"configured"`
	APIURL     string `json:"api_url"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string         `json:"status"`
	Storage  storageHealth  `json:"storage"`
	Healthie healthieHealth `json:"healthie"`
}

// HealthHandler reports storage connectivity and whether the Healthie client
// has credentials. Storage failures answer 503.
func HealthHandler(info HealthInfo) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		resp := HealthResponse{
			Status:   "healthy",
			Storage:  storageHealth{Driver: info.Driver, Connected: true},
			Healthie: healthieHealth{Configured: info.HealthieConfigured, APIURL: info.HealthieURL},
		}
		code := http.StatusOK
		if err := info.Storage.Ping(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Storage.Connected = false
			resp.Storage.Error = err.Error()
			code = http.StatusServiceUnavailable
		} else if !info.HealthieConfigured {
			resp.Status = "degraded"
		}
		return c.JSON(code, resp)
	}
}

// PoolHealthHandler returns a handler for the database health check
// endpoint. stats is read after the ping so it reflects the ping.
func PoolHealthHandler(p Pinger, stats func() *PoolStats) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		err := p.Ping(ctx)
		st := stats()

		if err != nil {
			st.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
				"pool":   st,
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"pool":   st,
		})
	}
}

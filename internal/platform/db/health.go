package db

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// Check probes one backing service.
type Check func(ctx context.Context) error

// PoolCheck pings the pool.
func PoolCheck(pool *pgxpool.Pool) Check {
	return func(ctx context.Context) error { return pool.Ping(ctx) }
}

type componentStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthHandler runs every check with a shared 5s budget and answers 503 if
// any of them fails.
func HealthHandler(checks map[string]Check) echo.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		healthy := true
		components := make([]componentStatus, 0, len(names))
		for _, name := range names {
			st := componentStatus{Name: name, Status: "healthy"}
			if err := checks[name](ctx); err != nil {
				healthy = false
				st.Status = "unhealthy"
				st.Error = err.Error()
			}
			components = append(components, st)
		}

		code, status := http.StatusOK, "healthy"
		if !healthy {
			code, status = http.StatusServiceUnavailable, "unhealthy"
		}
		return c.JSON(code, map[string]interface{}{
			"status":     status,
			"components": components,
		})
	}
}

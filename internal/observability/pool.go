package observability

import (
	"github.com/IBM/pgxpoolprometheus"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterPool exports connection pool statistics for pool, labeled with
// the owning binary.
func RegisterPool(registerer prometheus.Registerer, pool *pgxpool.Pool, service string) error {
	return registerer.Register(pgxpoolprometheus.NewCollector(pool, map[string]string{
		"db_name": "progression",
		"service": service,
	}))
}

package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DBConnections reports pgxpool connection counts by state: open, in_use,
// idle, and max.
var DBConnections = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections",
		Help:      "Database pool connections by state",
	},
	[]string{"state"},
)

// DBCollector periodically samples pgxpool statistics into DBConnections.
type DBCollector struct {
	pool     *pgxpool.Pool
	stopChan chan struct{}
}

func NewDBCollector(pool *pgxpool.Pool) *DBCollector {
	return &DBCollector{
		pool:     pool,
		stopChan: make(chan struct{}),
	}
}

func (c *DBCollector) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.collect()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *DBCollector) Stop() {
	close(c.stopChan)
}

func (c *DBCollector) collect() {
	if c.pool == nil {
		return
	}

	stat := c.pool.Stat()
	DBConnections.WithLabelValues("open").Set(float64(stat.TotalConns()))
	DBConnections.WithLabelValues("in_use").Set(float64(stat.AcquiredConns()))
	DBConnections.WithLabelValues("idle").Set(float64(stat.IdleConns()))
	DBConnections.WithLabelValues("max").Set(float64(stat.MaxConns()))
}

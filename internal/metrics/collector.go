package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

// ModelStats gives the collector read access to the singleton model
// manager's residency and job-slot state at scrape time.
type ModelStats interface {
	MainModelLoaded() bool
	LiveModelLoaded() bool
	JobActive() bool
}

// Collector implements prometheus.Collector, reading live model/job state
// and the database connection pool's stats at scrape time rather than on
// every state change.
type Collector struct {
	db     *sql.DB
	models ModelStats

	mainModelLoaded *prometheus.Desc
	liveModelLoaded *prometheus.Desc
	jobActive       *prometheus.Desc
	dbOpenConns     *prometheus.Desc
	dbInUseConns    *prometheus.Desc
	dbIdleConns     *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// Either argument may be nil (the corresponding metrics report 0).
func NewCollector(db *sql.DB, models ModelStats) *Collector {
	return &Collector{
		db:     db,
		models: models,
		mainModelLoaded: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "main_model_loaded"),
			"1 if the main transcription model is resident, 0 otherwise.",
			nil, nil,
		),
		liveModelLoaded: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "live_model_loaded"),
			"1 if a Live Mode model is resident, 0 otherwise.",
			nil, nil,
		),
		jobActive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "job_slot_active"),
			"1 if the single job slot is currently held, 0 otherwise.",
			nil, nil,
		),
		dbOpenConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db", "open_connections"),
			"Open database connections.",
			nil, nil,
		),
		dbInUseConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db", "in_use_connections"),
			"Database connections currently in use.",
			nil, nil,
		),
		dbIdleConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db", "idle_connections"),
			"Idle database connections.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.mainModelLoaded
	ch <- c.liveModelLoaded
	ch <- c.jobActive
	ch <- c.dbOpenConns
	ch <- c.dbInUseConns
	ch <- c.dbIdleConns
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.models != nil {
		ch <- prometheus.MustNewConstMetric(c.mainModelLoaded, prometheus.GaugeValue, boolToFloat(c.models.MainModelLoaded()))
		ch <- prometheus.MustNewConstMetric(c.liveModelLoaded, prometheus.GaugeValue, boolToFloat(c.models.LiveModelLoaded()))
		ch <- prometheus.MustNewConstMetric(c.jobActive, prometheus.GaugeValue, boolToFloat(c.models.JobActive()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.mainModelLoaded, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.liveModelLoaded, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.jobActive, prometheus.GaugeValue, 0)
	}

	if c.db != nil {
		stats := c.db.Stats()
		ch <- prometheus.MustNewConstMetric(c.dbOpenConns, prometheus.GaugeValue, float64(stats.OpenConnections))
		ch <- prometheus.MustNewConstMetric(c.dbInUseConns, prometheus.GaugeValue, float64(stats.InUse))
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, float64(stats.Idle))
	} else {
		ch <- prometheus.MustNewConstMetric(c.dbOpenConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbInUseConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, 0)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

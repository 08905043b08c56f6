// Package metrics exposes farm activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jordanella.com/paws-farm-go/internal/events"
	"jordanella.com/paws-farm-go/internal/game"
)

// Collector holds every metric of the farm. It satisfies the observer
// interfaces of the game client, the credential manager and the scheduler.
type Collector struct {
	registry prometheus.Gatherer

	APICalls       *prometheus.CounterVec
	APILatency     *prometheus.HistogramVec
	Exchanges      *prometheus.CounterVec
	JobRuns        *prometheus.CounterVec
	JobPanics      *prometheus.CounterVec
	JobLatency     *prometheus.HistogramVec
	UpgradesBought prometheus.Counter
	MiningCycles   prometheus.Counter
	Mined          prometheus.Counter
	RewardsClaimed *prometheus.CounterVec
	AccountsDead   prometheus.Counter
	AccountsActive prometheus.Gauge
}

// NewCollector creates and registers the metrics with reg. Pass
// prometheus.NewRegistry() in tests.
func NewCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		registry: reg,
		APICalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawsfarm_api_calls_total",
			Help: "Backend calls by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		APILatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pawsfarm_api_latency_seconds",
			Help:    "Backend call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		Exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawsfarm_credential_exchanges_total",
			Help: "Credential exchanges by result",
		}, []string{"result"}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawsfarm_job_runs_total",
			Help: "Job runs by kind",
		}, []string{"kind"}),
		JobPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawsfarm_job_panics_total",
			Help: "Recovered job panics by kind",
		}, []string{"kind"}),
		JobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pawsfarm_job_duration_seconds",
			Help:    "Job run duration",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		UpgradesBought: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pawsfarm_upgrades_purchased_total",
			Help: "Upgrades purchased",
		}),
		MiningCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pawsfarm_mining_cycles_total",
			Help: "Completed mining cycles",
		}),
		Mined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pawsfarm_mined_total",
			Help: "Coins reported mined",
		}),
		RewardsClaimed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pawsfarm_rewards_claimed_total",
			Help: "Claimed rewards by kind",
		}, []string{"kind"}),
		AccountsDead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pawsfarm_accounts_dead_total",
			Help: "Accounts whose jobs were torn down",
		}),
		AccountsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pawsfarm_accounts_active",
			Help: "Accounts with running jobs",
		}),
	}

	reg.MustRegister(
		c.APICalls, c.APILatency, c.Exchanges,
		c.JobRuns, c.JobPanics, c.JobLatency,
		c.UpgradesBought, c.MiningCycles, c.Mined, c.RewardsClaimed,
		c.AccountsDead, c.AccountsActive,
	)
	return c
}

// ObserveCall records one backend call.
func (c *Collector) ObserveCall(endpoint string, outcome game.Outcome, elapsed time.Duration) {
	c.APICalls.WithLabelValues(endpoint, outcome.String()).Inc()
	c.APILatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveExchange records one credential exchange.
func (c *Collector) ObserveExchange(result string) {
	c.Exchanges.WithLabelValues(result).Inc()
}

// ObserveRun records one job run.
func (c *Collector) ObserveRun(kind string, elapsed time.Duration, panicked bool) {
	c.JobRuns.WithLabelValues(kind).Inc()
	c.JobLatency.WithLabelValues(kind).Observe(elapsed.Seconds())
	if panicked {
		c.JobPanics.WithLabelValues(kind).Inc()
	}
}

// Subscribe counts activity events from the bus.
func (c *Collector) Subscribe(bus events.EventBus) {
	bus.Subscribe(events.EventTypeUpgradePurchased, func(events.Event) { c.UpgradesBought.Inc() })
	bus.Subscribe(events.EventTypeMiningCycle, func(e events.Event) {
		c.MiningCycles.Inc()
		if mined, ok := e.Data["mined"].(int64); ok && mined > 0 {
			c.Mined.Add(float64(mined))
		}
	})
	bus.Subscribe(events.EventTypeRewardClaimed, func(e events.Event) {
		kind, _ := e.Data["kind"].(string)
		c.RewardsClaimed.WithLabelValues(kind).Inc()
	})
	bus.Subscribe(events.EventTypeJobsStarted, func(events.Event) { c.AccountsActive.Inc() })
	bus.Subscribe(events.EventTypeAccountDead, func(events.Event) {
		c.AccountsDead.Inc()
	})
	bus.Subscribe(events.EventTypeJobsCanceled, func(e events.Event) {
		if started, _ := e.Data["was_started"].(bool); started {
			c.AccountsActive.Dec()
		}
	})
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Package metrics exposes prometheus counters and gauges for the server:
// commands served, attached followers, and the leader's replication
// offset, plus a connection collector in the sockstats exporter's style
// (a mutex-guarded map of live connections, scraped on demand rather than
// updated eagerly).
package metrics

import (
	"net"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the metrics this server reports. Call NewRegistry once
// at startup and register it with prometheus.DefaultRegisterer.
type Registry struct {
	CommandsTotal      *prometheus.CounterVec
	ConnectedFollowers prometheus.Gauge
	MasterReplOffset   prometheus.Gauge
	Conns              *ConnCollector
}

func NewRegistry() *Registry {
	return &Registry{
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "commands_total",
			Help: "Number of commands dispatched, by command name.",
		}, []string{"command"}),
		ConnectedFollowers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "connected_followers",
			Help: "Number of followers currently attached to this leader.",
		}),
		MasterReplOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "master_repl_offset",
			Help: "Current leader replication offset.",
		}),
		Conns: NewConnCollector(),
	}
}

// MustRegister registers every metric on reg, panicking on a duplicate
// registration — a startup-time programmer error, not a runtime one.
func (r *Registry) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(r.CommandsTotal, r.ConnectedFollowers, r.MasterReplOffset, r.Conns)
}

// connEntry records just enough about a live connection to label it on
// scrape.
type connEntry struct {
	kind string // "client" or "follower"
}

// ConnCollector tracks live connections in a mutex-guarded map and reports
// a per-kind gauge on every scrape, grounded on the sockstats exporter's
// TCPInfoCollector: add on accept, remove on close, and let Collect do the
// aggregation lazily instead of maintaining running counters by hand.
type ConnCollector struct {
	mu    sync.Mutex
	conns map[net.Conn]connEntry
	desc  *prometheus.Desc
}

func NewConnCollector() *ConnCollector {
	return &ConnCollector{
		conns: make(map[net.Conn]connEntry),
		desc: prometheus.NewDesc(
			"active_connections",
			"Number of currently open connections, by kind.",
			[]string{"kind"}, nil,
		),
	}
}

func (c *ConnCollector) Add(conn net.Conn, kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[conn] = connEntry{kind: kind}
}

func (c *ConnCollector) Remove(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, conn)
}

func (c *ConnCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.desc
}

func (c *ConnCollector) Collect(out chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counts := make(map[string]int)
	for _, e := range c.conns {
		counts[e.kind]++
	}
	for kind, n := range counts {
		out <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(n), kind)
	}
}

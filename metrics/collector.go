// Package metrics exposes the connection table's live activity as
// Prometheus gauges and counters, the same Describe/Collect shape used
// throughout the example corpus's exporters.
package metrics

import (
	"github.com/kestrelscan/tcpstack/tcpengine"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is satisfied by *tcpengine.Table.
type StatsSource interface {
	Stats() tcpengine.Stats
}

// TableCollector adapts a StatsSource to prometheus.Collector.
type TableCollector struct {
	source StatsSource

	active      *prometheus.Desc
	created     *prometheus.Desc
	destroyed   *prometheus.Desc
	retransmits *prometheus.Desc
	bytesSent   *prometheus.Desc
	bytesRecv   *prometheus.Desc
	banners     *prometheus.Desc
	txDropped   *prometheus.Desc
}

// NewTableCollector wraps source, labeling every metric under the
// "tcpstack_table" subsystem.
func NewTableCollector(source StatsSource) *TableCollector {
	ns := "tcpstack"
	sub := "table"
	return &TableCollector{
		source:      source,
		active:      prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "active_connections"), "Number of live TCBs in the connection table.", nil, nil),
		created:     prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "connections_created_total"), "Total TCBs created since startup.", nil, nil),
		destroyed:   prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "connections_destroyed_total"), "Total TCBs destroyed since startup.", nil, nil),
		retransmits: prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "retransmits_total"), "Total segment retransmissions.", nil, nil),
		bytesSent:   prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "bytes_sent_total"), "Total payload bytes transmitted.", nil, nil),
		bytesRecv:   prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "bytes_received_total"), "Total payload bytes received.", nil, nil),
		banners:     prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "banners_reported_total"), "Total banners flushed to the reporter.", nil, nil),
		txDropped:   prometheus.NewDesc(prometheus.BuildFQName(ns, sub, "tx_dropped_total"), "Total outbound frames dropped because the transmit ring was full.", nil, nil),
	}
}

func (c *TableCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.active
	ch <- c.created
	ch <- c.destroyed
	ch <- c.retransmits
	ch <- c.bytesSent
	ch <- c.bytesRecv
	ch <- c.banners
	ch <- c.txDropped
}

func (c *TableCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(s.Active))
	ch <- prometheus.MustNewConstMetric(c.created, prometheus.CounterValue, float64(s.Created))
	ch <- prometheus.MustNewConstMetric(c.destroyed, prometheus.CounterValue, float64(s.Destroyed))
	ch <- prometheus.MustNewConstMetric(c.retransmits, prometheus.CounterValue, float64(s.Retransmits))
	ch <- prometheus.MustNewConstMetric(c.bytesSent, prometheus.CounterValue, float64(s.BytesSent))
	ch <- prometheus.MustNewConstMetric(c.bytesRecv, prometheus.CounterValue, float64(s.BytesRecv))
	ch <- prometheus.MustNewConstMetric(c.banners, prometheus.CounterValue, float64(s.BannersSent))
	ch <- prometheus.MustNewConstMetric(c.txDropped, prometheus.CounterValue, float64(s.TxDropped))
}

package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"packet-intake/internal/config"
	"packet-intake/pkg/pipeline"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the pipeline counters to Prometheus. Values are read from
// the pipeline at scrape time; workers never touch a Prometheus type.
type Metrics struct {
	Received       prometheus.CounterFunc
	Processed      prometheus.CounterFunc
	ReceivedBytes  prometheus.CounterFunc
	ProcessedBytes prometheus.CounterFunc
	EnqueueRetries prometheus.CounterFunc
	DoubleReleases prometheus.CounterFunc
	QueueUsed      prometheus.GaugeFunc
	QueueFree      prometheus.GaugeFunc
	QueueCapacity  prometheus.GaugeFunc
	RecordsLive    prometheus.GaugeFunc
	ReportsTotal   prometheus.Counter
	AlertsTotal    *prometheus.CounterVec

	pipeline  *pipeline.Pipeline
	collector *collector
}

func New(p *pipeline.Pipeline) *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, p)
}

func NewWithRegistry(reg prometheus.Registerer, p *pipeline.Pipeline) *Metrics {
	counters := p.Counters()
	counter := func(name, help string, read func(pipeline.Snapshot) uint64) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, func() float64 {
			return float64(read(counters.Snapshot()))
		})
	}
	gauge := func(name, help string, read func() float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, read)
	}

	m := &Metrics{
		Received: counter("intake_packets_received_total", "Packets copied into records by receive workers",
			func(s pipeline.Snapshot) uint64 { return s.Received }),
		Processed: counter("intake_packets_processed_total", "Records released by consumer workers",
			func(s pipeline.Snapshot) uint64 { return s.Processed }),
		ReceivedBytes: counter("intake_bytes_received_total", "Bytes copied into records",
			func(s pipeline.Snapshot) uint64 { return s.ReceivedBytes }),
		ProcessedBytes: counter("intake_bytes_processed_total", "Bytes released by consumer workers",
			func(s pipeline.Snapshot) uint64 { return s.ProcessedBytes }),
		EnqueueRetries: counter("intake_enqueue_retries_total", "Enqueue attempts repeated because the queue was full",
			func(s pipeline.Snapshot) uint64 { return s.EnqueueRetries }),
		DoubleReleases: counter("intake_double_releases_total", "Record releases refused because the record was already free",
			func(s pipeline.Snapshot) uint64 { return s.DoubleReleases }),
		QueueUsed: gauge("intake_queue_used", "Records waiting in the queue",
			func() float64 { return float64(p.Queue().Len()) }),
		QueueFree: gauge("intake_queue_free", "Free queue slots (advisory)",
			func() float64 { return float64(p.Queue().Free()) }),
		QueueCapacity: gauge("intake_queue_capacity", "Queue capacity",
			func() float64 { return float64(p.Queue().Cap()) }),
		RecordsLive: gauge("intake_records_live", "Records currently taken from the pool",
			func() float64 { return float64(p.Records().Live()) }),
		ReportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_stats_reports_total",
			Help: "Stats reports emitted by the coordinator",
		}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_alerts_total",
			Help: "Drop alerts raised on stats ticks",
		}, []string{"kind"}),
		pipeline:  p,
		collector: newCollector(p),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.Received,
		m.Processed,
		m.ReceivedBytes,
		m.ProcessedBytes,
		m.EnqueueRetries,
		m.DoubleReleases,
		m.QueueUsed,
		m.QueueFree,
		m.QueueCapacity,
		m.RecordsLive,
		m.ReportsTotal,
		m.AlertsTotal,
		m.collector,
	)
	return m
}

// ObserveReport is the coordinator's report hook.
func (m *Metrics) ObserveReport(pipeline.Report) {
	m.ReportsTotal.Inc()
}

func (m *Metrics) IncAlert(kind string) {
	if kind == "" {
		return
	}
	m.AlertsTotal.WithLabelValues(kind).Inc()
}

type Snapshot struct {
	Received          uint64
	Processed         uint64
	ReceivedBytes     uint64
	ProcessedBytes    uint64
	DroppedAllocation uint64
	DroppedQueueFull  uint64
	EnqueueRetries    uint64
	PortReceived      uint64
	PortErrors        uint64
	PortMissed        uint64
	QueueUsed         uint64
}

func (m *Metrics) Snapshot() Snapshot {
	c := m.pipeline.Snapshot()
	s := Snapshot{
		Received:          c.Received,
		Processed:         c.Processed,
		ReceivedBytes:     c.ReceivedBytes,
		ProcessedBytes:    c.ProcessedBytes,
		DroppedAllocation: c.DroppedAllocation,
		DroppedQueueFull:  c.DroppedQueueFull,
		EnqueueRetries:    c.EnqueueRetries,
		QueueUsed:         uint64(m.pipeline.Queue().Len()),
	}
	dev := m.pipeline.NIC()
	for _, port := range dev.Ports() {
		st, err := dev.PortStats(port)
		if err != nil {
			continue
		}
		s.PortReceived += st.Received
		s.PortErrors += st.Errors
		s.PortMissed += st.Missed
	}
	return s
}

// collector emits the labelled series whose values come from the pipeline:
// drops by reason and per-port hardware counters.
type collector struct {
	pipeline     *pipeline.Pipeline
	drops        *prometheus.Desc
	portReceived *prometheus.Desc
	portErrors   *prometheus.Desc
	portMissed   *prometheus.Desc
}

func newCollector(p *pipeline.Pipeline) *collector {
	return &collector{
		pipeline: p,
		drops: prometheus.NewDesc("intake_drops_total",
			"Records dropped by the pipeline", []string{"reason"}, nil),
		portReceived: prometheus.NewDesc("intake_port_received_total",
			"Frames received by the NIC port", []string{"port"}, nil),
		portErrors: prometheus.NewDesc("intake_port_errors_total",
			"Receive errors reported by the NIC port", []string{"port"}, nil),
		portMissed: prometheus.NewDesc("intake_port_missed_total",
			"Frames the NIC port had no room for", []string{"port"}, nil),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.drops
	ch <- c.portReceived
	ch <- c.portErrors
	ch <- c.portMissed
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	s := c.pipeline.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.drops, prometheus.CounterValue, float64(s.DroppedAllocation), "allocation")
	ch <- prometheus.MustNewConstMetric(c.drops, prometheus.CounterValue, float64(s.DroppedQueueFull), "queue_full")

	dev := c.pipeline.NIC()
	for _, port := range dev.Ports() {
		st, err := dev.PortStats(port)
		if err != nil {
			continue
		}
		label := strconv.Itoa(int(port))
		ch <- prometheus.MustNewConstMetric(c.portReceived, prometheus.CounterValue, float64(st.Received), label)
		ch <- prometheus.MustNewConstMetric(c.portErrors, prometheus.CounterValue, float64(st.Errors), label)
		ch <- prometheus.MustNewConstMetric(c.portMissed, prometheus.CounterValue, float64(st.Missed), label)
	}
}

// StartServer serves g (the default registry when nil) until ctx ends.
func StartServer(ctx context.Context, cfg config.MetricsConfig, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    cfg.Address,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

package observability

import (
	"fmt"
	"sync"
	"time"

	"packet-intake/internal/logger"
	"packet-intake/pkg/pipeline"
)

type AlertType string

const (
	AlertDrops  AlertType = "drops"
	AlertMissed AlertType = "missed"
	AlertErrors AlertType = "errors"
)

type Alert struct {
	ID        string    `json:"id"`
	Type      AlertType `json:"type"`
	Port      *uint16   `json:"port,omitempty"`
	Message   string    `json:"message"`
	Value     uint64    `json:"value"`
	Threshold uint64    `json:"threshold"`
	Timestamp int64     `json:"timestamp"`
}

// AlertsConfig holds per-tick delta thresholds. Zero disables a check.
type AlertsConfig struct {
	DropsThreshold  uint64
	MissedThreshold uint64
	ErrorsThreshold uint64
}

type AlertStore struct {
	alerts *bounded[Alert]
}

func NewAlertStore(limit int) *AlertStore {
	return &AlertStore{alerts: newBounded[Alert](limit)}
}

func (s *AlertStore) Add(alert Alert) {
	s.alerts.add(alert)
}

func (s *AlertStore) List() []Alert {
	return s.alerts.list()
}

func (s *AlertStore) Limit() int {
	return s.alerts.limit
}

// EvaluateAlerts compares two consecutive reports. Pipeline drops are checked
// as a total; missed frames and receive errors per port.
func EvaluateAlerts(prev, curr pipeline.Report, cfg AlertsConfig) []Alert {
	var out []Alert
	now := curr.Time.Unix()
	if curr.Time.IsZero() {
		now = time.Now().Unix()
	}

	if cfg.DropsThreshold > 0 {
		delta := delta(prev.Counters.DroppedAllocation+prev.Counters.DroppedQueueFull,
			curr.Counters.DroppedAllocation+curr.Counters.DroppedQueueFull)
		if delta >= cfg.DropsThreshold {
			out = append(out, Alert{
				ID:        newAlertID(),
				Type:      AlertDrops,
				Message:   "pipeline drops threshold exceeded",
				Value:     delta,
				Threshold: cfg.DropsThreshold,
				Timestamp: now,
			})
		}
	}

	prevPorts := make(map[uint16]pipeline.PortReport, len(prev.Ports))
	for _, p := range prev.Ports {
		prevPorts[p.Port] = p
	}
	for _, p := range curr.Ports {
		if p.Err != "" {
			continue
		}
		before := prevPorts[p.Port].Stats
		port := p.Port
		if cfg.MissedThreshold > 0 {
			if d := delta(before.Missed, p.Stats.Missed); d >= cfg.MissedThreshold {
				out = append(out, Alert{
					ID:        newAlertID(),
					Type:      AlertMissed,
					Port:      &port,
					Message:   fmt.Sprintf("port %d missed threshold exceeded", port),
					Value:     d,
					Threshold: cfg.MissedThreshold,
					Timestamp: now,
				})
			}
		}
		if cfg.ErrorsThreshold > 0 {
			if d := delta(before.Errors, p.Stats.Errors); d >= cfg.ErrorsThreshold {
				out = append(out, Alert{
					ID:        newAlertID(),
					Type:      AlertErrors,
					Port:      &port,
					Message:   fmt.Sprintf("port %d errors threshold exceeded", port),
					Value:     d,
					Threshold: cfg.ErrorsThreshold,
					Timestamp: now,
				})
			}
		}
	}
	return out
}

func delta(prev, curr uint64) uint64 {
	if curr < prev {
		return 0
	}
	return curr - prev
}

var alertSeq struct {
	sync.Mutex
	n uint64
}

func newAlertID() string {
	alertSeq.Lock()
	alertSeq.n++
	n := alertSeq.n
	alertSeq.Unlock()
	return fmt.Sprintf("%s-%d", time.Now().Format("20060102150405"), n)
}

// Monitor is the coordinator's report hook: it keeps the report history and
// raises alerts on the difference between consecutive reports.
type Monitor struct {
	cfg     AlertsConfig
	alerts  *AlertStore
	history *History
	log     *logger.Logger
	onAlert func(Alert)

	mu   sync.Mutex
	prev *pipeline.Report
}

func NewMonitor(cfg AlertsConfig, historyLimit int, log *logger.Logger, onAlert func(Alert)) *Monitor {
	if log == nil {
		log = logger.Nop()
	}
	return &Monitor{
		cfg:     cfg,
		alerts:  NewAlertStore(historyLimit),
		history: NewHistory(historyLimit),
		log:     log,
		onAlert: onAlert,
	}
}

func (m *Monitor) Observe(r pipeline.Report) {
	m.history.Add(r)

	m.mu.Lock()
	prev := m.prev
	m.prev = &r
	m.mu.Unlock()

	var base pipeline.Report
	if prev != nil {
		base = *prev
	}
	for _, alert := range EvaluateAlerts(base, r, m.cfg) {
		m.alerts.Add(alert)
		fields := map[string]any{
			"type":      string(alert.Type),
			"value":     alert.Value,
			"threshold": alert.Threshold,
		}
		if alert.Port != nil {
			fields["port"] = *alert.Port
		}
		m.log.Warn(alert.Message, fields)
		if m.onAlert != nil {
			m.onAlert(alert)
		}
	}
}

func (m *Monitor) Alerts() *AlertStore { return m.alerts }

func (m *Monitor) History() *History { return m.history }

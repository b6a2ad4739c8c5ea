package presets

import (
	"fmt"
	"time"

	"packet-intake/internal/config"
)

// ApplySummary lists the pipeline keys a preset changed.
type ApplySummary struct {
	Preset  string   `json:"preset"`
	Changed []string `json:"changed"`
}

// ApplyPreset returns a validated copy of base with the preset applied.
// base is not modified.
func ApplyPreset(base *config.Config, preset Preset) (*config.Config, ApplySummary, error) {
	if base == nil {
		return nil, ApplySummary{}, fmt.Errorf("base config is nil")
	}
	next := cloneConfig(base)
	summary := ApplySummary{Preset: preset.ID}
	p := &next.Pipeline
	s := preset.Settings

	setInt(&summary, "pipeline.queue_capacity", &p.QueueCapacity, s.QueueCapacity)
	setInt(&summary, "pipeline.burst_size", &p.BurstSize, s.BurstSize)
	setInt(&summary, "pipeline.consumers", &p.Consumers, s.Consumers)
	setInt(&summary, "pipeline.retry_budget", &p.RetryBudget, s.RetryBudget)
	if s.EnqueuePolicy != nil && *s.EnqueuePolicy != p.EnqueuePolicy {
		p.EnqueuePolicy = *s.EnqueuePolicy
		summary.Changed = append(summary.Changed, "pipeline.enqueue_policy")
	}
	if s.IdleBackoff != nil && *s.IdleBackoff != p.IdleBackoff {
		p.IdleBackoff = *s.IdleBackoff
		summary.Changed = append(summary.Changed, "pipeline.idle_backoff")
	}
	if s.IdleSleep != nil {
		d, err := time.ParseDuration(*s.IdleSleep)
		if err != nil {
			return nil, ApplySummary{}, fmt.Errorf("preset %s: idle_sleep: %w", preset.ID, err)
		}
		if d != p.IdleSleep {
			p.IdleSleep = d
			summary.Changed = append(summary.Changed, "pipeline.idle_sleep")
		}
	}

	if err := config.Validate(next); err != nil {
		return nil, ApplySummary{}, fmt.Errorf("preset %s: %w", preset.ID, err)
	}
	return next, summary, nil
}

func setInt(summary *ApplySummary, key string, dst *int, v *int) {
	if v == nil || *v == *dst {
		return
	}
	*dst = *v
	summary.Changed = append(summary.Changed, key)
}

func cloneConfig(cfg *config.Config) *config.Config {
	next := *cfg
	next.NIC.Ports = append([]config.PortConfig(nil), cfg.NIC.Ports...)
	next.NIC.Synthetic.FrameSizes = append([]int(nil), cfg.NIC.Synthetic.FrameSizes...)
	next.Pipeline.Cores = append([]int(nil), cfg.Pipeline.Cores...)
	return &next
}

package config

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"packet-intake/pkg/pipeline"

	"github.com/spf13/viper"
)

const (
	DriverSynthetic = "synthetic"
	DriverPcap      = "pcap"
	DriverAFPacket  = "afpacket"
)

type Config struct {
	NIC           NICConfig           `mapstructure:"nic"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline"`
	API           APIConfig           `mapstructure:"api"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	MetricsExport MetricsExportConfig `mapstructure:"metrics_export"`
	Alerts        AlertsConfig        `mapstructure:"alerts"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Presets       PresetsConfig       `mapstructure:"presets"`
}

type NICConfig struct {
	Driver        string          `mapstructure:"driver"`
	Ports         []PortConfig    `mapstructure:"ports"`
	RingSize      int             `mapstructure:"ring_size"`
	FrameSize     int             `mapstructure:"frame_size"`
	FramePoolSize int             `mapstructure:"frame_pool_size"`
	PollTimeout   time.Duration   `mapstructure:"poll_timeout"`
	Promiscuous   bool            `mapstructure:"promiscuous"`
	Replay        ReplayConfig    `mapstructure:"replay"`
	Synthetic     SyntheticConfig `mapstructure:"synthetic"`
}

// PortConfig names an interface (afpacket), a capture file (pcap) or just a
// label (synthetic).
type PortConfig struct {
	Name string `mapstructure:"name"`
}

type ReplayConfig struct {
	RatePPS float64 `mapstructure:"rate_pps"`
	Loop    bool    `mapstructure:"loop"`
}

type SyntheticConfig struct {
	RatePPS    float64 `mapstructure:"rate_pps"`
	FrameSizes []int   `mapstructure:"frame_sizes"`
}

type PipelineConfig struct {
	QueuesPerPort   int           `mapstructure:"queues_per_port"`
	QueueCapacity   int           `mapstructure:"queue_capacity"`
	BurstSize       int           `mapstructure:"burst_size"`
	Consumers       int           `mapstructure:"consumers"`
	StatsInterval   time.Duration `mapstructure:"stats_interval"`
	EnqueuePolicy   string        `mapstructure:"enqueue_policy"`
	RetryBudget     int           `mapstructure:"retry_budget"`
	IdleBackoff     string        `mapstructure:"idle_backoff"`
	IdleSleep       time.Duration `mapstructure:"idle_sleep"`
	RecordPoolLimit int           `mapstructure:"record_pool_limit"`
	Cores           []int         `mapstructure:"cores"`
}

type APIConfig struct {
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
	Pprof   bool   `mapstructure:"pprof"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
	Path    string `mapstructure:"path"`
}

type MetricsExportConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	RemoteWriteURL  string `mapstructure:"remote_write_url"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`
	BearerToken     string `mapstructure:"bearer_token"`
}

type AlertsConfig struct {
	DropsThreshold  uint64 `mapstructure:"drops_threshold"`
	MissedThreshold uint64 `mapstructure:"missed_threshold"`
	ErrorsThreshold uint64 `mapstructure:"errors_threshold"`
	HistoryLimit    int    `mapstructure:"history_limit"`
}

// PresetsConfig selects a tuning preset applied over the pipeline section.
type PresetsConfig struct {
	Dir    string `mapstructure:"dir"`
	Active string `mapstructure:"active"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(v)
}

func LoadFromBytes(data []byte) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(v)
}

// Default returns the built-in configuration with environment overrides applied.
func Default() (*Config, error) {
	return decode(newViper())
}

func Validate(cfg *Config) error {
	return validate(cfg)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("INTAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("nic.driver", DriverSynthetic)
	v.SetDefault("nic.ports", []map[string]any{{"name": "syn0"}})
	v.SetDefault("nic.ring_size", 2048)
	v.SetDefault("nic.frame_size", 2048)
	v.SetDefault("nic.frame_pool_size", 8192)
	v.SetDefault("nic.poll_timeout", time.Millisecond)
	v.SetDefault("nic.promiscuous", true)
	v.SetDefault("nic.replay.rate_pps", 0)
	v.SetDefault("nic.replay.loop", false)
	v.SetDefault("nic.synthetic.rate_pps", 0)
	v.SetDefault("nic.synthetic.frame_sizes", []int{64})

	v.SetDefault("pipeline.queues_per_port", 3)
	v.SetDefault("pipeline.queue_capacity", 1<<20)
	v.SetDefault("pipeline.burst_size", 32)
	v.SetDefault("pipeline.consumers", 10)
	v.SetDefault("pipeline.stats_interval", 3*time.Second)
	v.SetDefault("pipeline.enqueue_policy", string(pipeline.PolicyBackpressure))
	v.SetDefault("pipeline.retry_budget", 64)
	v.SetDefault("pipeline.idle_backoff", string(pipeline.IdleYield))
	v.SetDefault("pipeline.idle_sleep", 50*time.Microsecond)
	v.SetDefault("pipeline.record_pool_limit", 0)
	v.SetDefault("pipeline.cores", []int{})

	v.SetDefault("api.address", "")
	v.SetDefault("api.token", "")
	v.SetDefault("api.pprof", false)
	v.SetDefault("metrics.address", "")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics_export.enabled", false)
	v.SetDefault("metrics_export.remote_write_url", "")
	v.SetDefault("metrics_export.interval_seconds", 10)
	v.SetDefault("metrics_export.bearer_token", "")
	v.SetDefault("alerts.drops_threshold", 0)
	v.SetDefault("alerts.missed_threshold", 0)
	v.SetDefault("alerts.errors_threshold", 0)
	v.SetDefault("alerts.history_limit", 100)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
	v.SetDefault("presets.dir", "")
	v.SetDefault("presets.active", "")
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.NIC.Driver {
	case DriverSynthetic, DriverPcap, DriverAFPacket:
	default:
		return fmt.Errorf("nic.driver %q is not one of synthetic, pcap, afpacket", cfg.NIC.Driver)
	}
	if len(cfg.NIC.Ports) == 0 {
		return fmt.Errorf("nic.ports must name at least one port")
	}
	for i, port := range cfg.NIC.Ports {
		if port.Name == "" {
			return fmt.Errorf("nic.ports[%d].name is required", i)
		}
	}
	if cfg.NIC.RingSize <= 0 {
		return fmt.Errorf("nic.ring_size must be positive")
	}
	if cfg.NIC.FrameSize <= 0 {
		return fmt.Errorf("nic.frame_size must be positive")
	}
	if cfg.NIC.FramePoolSize < 0 {
		return fmt.Errorf("nic.frame_pool_size must not be negative")
	}
	if cfg.NIC.PollTimeout < 0 {
		return fmt.Errorf("nic.poll_timeout must not be negative")
	}
	for i, size := range cfg.NIC.Synthetic.FrameSizes {
		if size < 0 {
			return fmt.Errorf("nic.synthetic.frame_sizes[%d] must not be negative", i)
		}
	}

	p := cfg.Pipeline
	if p.QueuesPerPort <= 0 || p.QueuesPerPort > 1<<16-1 {
		return fmt.Errorf("pipeline.queues_per_port must be between 1 and 65535")
	}
	if p.QueueCapacity <= 0 {
		return fmt.Errorf("pipeline.queue_capacity must be positive")
	}
	if p.BurstSize <= 0 {
		return fmt.Errorf("pipeline.burst_size must be positive")
	}
	if p.Consumers <= 0 {
		return fmt.Errorf("pipeline.consumers must be positive")
	}
	if p.StatsInterval <= 0 {
		return fmt.Errorf("pipeline.stats_interval must be positive")
	}
	if _, err := pipeline.ParsePolicy(p.EnqueuePolicy); err != nil {
		return fmt.Errorf("pipeline.enqueue_policy: %w", err)
	}
	if p.RetryBudget < 0 {
		return fmt.Errorf("pipeline.retry_budget must not be negative")
	}
	if _, err := pipeline.ParseIdleMode(p.IdleBackoff); err != nil {
		return fmt.Errorf("pipeline.idle_backoff: %w", err)
	}
	if p.IdleSleep < 0 {
		return fmt.Errorf("pipeline.idle_sleep must not be negative")
	}
	if p.RecordPoolLimit < 0 {
		return fmt.Errorf("pipeline.record_pool_limit must not be negative")
	}
	for i, core := range p.Cores {
		if core < 0 {
			return fmt.Errorf("pipeline.cores[%d] must not be negative", i)
		}
	}

	if cfg.Metrics.Path == "" || !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	if cfg.MetricsExport.Enabled && cfg.MetricsExport.RemoteWriteURL == "" {
		return fmt.Errorf("metrics_export.remote_write_url is required when export is enabled")
	}
	if cfg.Alerts.HistoryLimit < 0 {
		return fmt.Errorf("alerts.history_limit must not be negative")
	}
	return nil
}

// PipelineOptions converts the pipeline section into pipeline options.
func (c *Config) PipelineOptions() pipeline.Options {
	policy, _ := pipeline.ParsePolicy(c.Pipeline.EnqueuePolicy)
	mode, _ := pipeline.ParseIdleMode(c.Pipeline.IdleBackoff)
	return pipeline.Options{
		QueueCapacity:   c.Pipeline.QueueCapacity,
		BurstSize:       c.Pipeline.BurstSize,
		Consumers:       c.Pipeline.Consumers,
		Policy:          policy,
		RetryBudget:     c.Pipeline.RetryBudget,
		Backoff:         pipeline.Backoff{Mode: mode, Sleep: c.Pipeline.IdleSleep},
		RecordPoolLimit: c.Pipeline.RecordPoolLimit,
		Cores:           append([]int(nil), c.Pipeline.Cores...),
	}
}

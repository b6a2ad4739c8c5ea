// Package presets holds named pipeline tuning profiles that overlay the
// loaded configuration.
package presets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

type Preset struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Settings    PresetSettings `json:"settings"`
}

// PresetSettings overrides pipeline settings. Nil fields keep the base value.
type PresetSettings struct {
	QueueCapacity *int    `json:"queue_capacity,omitempty"`
	BurstSize     *int    `json:"burst_size,omitempty"`
	Consumers     *int    `json:"consumers,omitempty"`
	EnqueuePolicy *string `json:"enqueue_policy,omitempty"`
	RetryBudget   *int    `json:"retry_budget,omitempty"`
	IdleBackoff   *string `json:"idle_backoff,omitempty"`
	IdleSleep     *string `json:"idle_sleep,omitempty"`
}

type PresetSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Store struct {
	mu      sync.Mutex
	presets map[string]Preset
}

// LoadStore returns the built-in presets plus any *.json presets in dir.
// A file preset replaces a built-in one with the same id. An empty dir
// loads only the built-ins.
func LoadStore(dir string) (*Store, error) {
	store := &Store{presets: map[string]Preset{}}
	for _, preset := range builtin() {
		store.presets[preset.ID] = preset
	}
	if dir == "" {
		return store, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read presets dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read preset %s: %w", entry.Name(), err)
		}
		var preset Preset
		if err := json.Unmarshal(data, &preset); err != nil {
			return nil, fmt.Errorf("parse preset %s: %w", entry.Name(), err)
		}
		if preset.ID == "" {
			preset.ID = strings.TrimSuffix(entry.Name(), ".json")
		}
		if !validPresetID(preset.ID) {
			return nil, fmt.Errorf("preset %s: invalid id %q", entry.Name(), preset.ID)
		}
		if preset.Name == "" {
			preset.Name = preset.ID
		}
		store.presets[preset.ID] = preset
	}
	return store, nil
}

func (s *Store) List() []PresetSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PresetSummary, 0, len(s.presets))
	for _, preset := range s.presets {
		out = append(out, PresetSummary{
			ID:          preset.ID,
			Name:        preset.Name,
			Description: preset.Description,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) Get(id string) (Preset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	preset, ok := s.presets[id]
	return preset, ok
}

func builtin() []Preset {
	return []Preset{
		{
			ID:          "low-latency",
			Name:        "Low latency",
			Description: "Busy-poll workers and drop at once when the queue is full",
			Settings: PresetSettings{
				BurstSize:     intPtr(16),
				EnqueuePolicy: strPtr("overflow"),
				IdleBackoff:   strPtr("spin"),
			},
		},
		{
			ID:          "throughput",
			Name:        "Throughput",
			Description: "Large bursts and bounded retries before dropping",
			Settings: PresetSettings{
				BurstSize:     intPtr(64),
				EnqueuePolicy: strPtr("backpressure"),
				RetryBudget:   intPtr(256),
				IdleBackoff:   strPtr("yield"),
			},
		},
		{
			ID:          "low-cpu",
			Name:        "Low CPU",
			Description: "Sleep between empty polls and run fewer consumers",
			Settings: PresetSettings{
				Consumers:   intPtr(2),
				IdleBackoff: strPtr("sleep"),
				IdleSleep:   strPtr("200us"),
			},
		},
	}
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func validPresetID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= 'A' && r <= 'Z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '-' || r == '_' {
			continue
		}
		return false
	}
	return true
}

package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"packet-intake/internal/config"
	"packet-intake/internal/logger"

	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"
)

func StartRemoteWrite(ctx context.Context, cfg config.MetricsExportConfig, m *Metrics, log *logger.Logger) {
	if !cfg.Enabled || cfg.RemoteWriteURL == "" {
		return
	}
	if log == nil {
		log = logger.Nop()
	}
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	token, err := config.ResolveSecret(cfg.BearerToken)
	if err != nil {
		log.Warn("remote write token unavailable", map[string]any{"error": err.Error()})
	}
	client := &http.Client{Timeout: 5 * time.Second}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := sendSnapshot(ctx, client, cfg.RemoteWriteURL, token, m.Snapshot()); err != nil {
					log.Warn("remote write failed", map[string]any{"url": cfg.RemoteWriteURL, "error": err.Error()})
				}
			}
		}
	}()
}

func sendSnapshot(ctx context.Context, client *http.Client, url, token string, snap Snapshot) error {
	now := time.Now().UnixMilli()
	series := []prompb.TimeSeries{
		newSeries("intake_packets_received_total", snap.Received, now),
		newSeries("intake_packets_processed_total", snap.Processed, now),
		newSeries("intake_bytes_received_total", snap.ReceivedBytes, now),
		newSeries("intake_bytes_processed_total", snap.ProcessedBytes, now),
		newSeries("intake_drops_total", snap.DroppedAllocation, now, prompb.Label{Name: "reason", Value: "allocation"}),
		newSeries("intake_drops_total", snap.DroppedQueueFull, now, prompb.Label{Name: "reason", Value: "queue_full"}),
		newSeries("intake_enqueue_retries_total", snap.EnqueueRetries, now),
		newSeries("intake_port_received_total", snap.PortReceived, now),
		newSeries("intake_port_errors_total", snap.PortErrors, now),
		newSeries("intake_port_missed_total", snap.PortMissed, now),
		newSeries("intake_queue_used", snap.QueueUsed, now),
	}
	req := &prompb.WriteRequest{Timeseries: series}
	data, err := req.Marshal()
	if err != nil {
		return fmt.Errorf("marshal write request: %w", err)
	}
	compressed := snappy.Encode(nil, data)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(compressed))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote write status %d", resp.StatusCode)
	}
	return nil
}

func newSeries(name string, value uint64, ts int64, labels ...prompb.Label) prompb.TimeSeries {
	return prompb.TimeSeries{
		Labels:  append([]prompb.Label{{Name: "__name__", Value: name}}, labels...),
		Samples: []prompb.Sample{{Value: float64(value), Timestamp: ts}},
	}
}

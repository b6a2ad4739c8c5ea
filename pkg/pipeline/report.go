package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"packet-intake/pkg/nic"
)

const reportRule = "--------------------------------------------------------------"

type PortReport struct {
	Port  uint16        `json:"port"`
	Stats nic.PortStats `json:"stats"`
	Err   string        `json:"error,omitempty"`
}

// Report is one stats tick: hardware counters per port plus pipeline state.
type Report struct {
	Time        time.Time    `json:"time"`
	Ports       []PortReport `json:"ports"`
	Counters    Snapshot     `json:"counters"`
	QueueFree   int          `json:"queue_free"`
	QueueUsed   int          `json:"queue_used"`
	QueueCap    int          `json:"queue_capacity"`
	RecordsLive int64        `json:"records_live"`
	Final       bool         `json:"final"`
}

func Collect(p *Pipeline) Report {
	rep := Report{
		Time:        time.Now(),
		Counters:    p.counters.Snapshot(),
		QueueFree:   p.queue.Free(),
		QueueUsed:   p.queue.Len(),
		QueueCap:    p.queue.Cap(),
		RecordsLive: p.records.Live(),
	}
	for _, port := range p.nic.Ports() {
		pr := PortReport{Port: port}
		stats, err := p.nic.PortStats(port)
		if err != nil {
			pr.Err = err.Error()
		} else {
			pr.Stats = stats
		}
		rep.Ports = append(rep.Ports, pr)
	}
	return rep
}

// WriteTo renders the console form of the report.
func (r Report) WriteTo(w io.Writer) (int64, error) {
	var b bytes.Buffer
	b.WriteString(reportRule + "\n")
	for _, p := range r.Ports {
		if p.Err != "" {
			fmt.Fprintf(&b, "Port #%d: stats unavailable: %s\n", p.Port, p.Err)
			continue
		}
		fmt.Fprintf(&b, "Port #%d: %d received / %d errors / %d missed\n",
			p.Port, p.Stats.Received, p.Stats.Errors, p.Stats.Missed)
	}
	fmt.Fprintf(&b, "Rx packets: %d \t Ring space: %d \t Packets processed: %d\n",
		r.Counters.Received, r.QueueFree, r.Counters.Processed)
	b.WriteString(reportRule + "\n\n")
	return b.WriteTo(w)
}

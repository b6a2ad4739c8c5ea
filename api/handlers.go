package api

import (
	"net/http"
	"strconv"

	"packet-intake/internal/observability"
	"packet-intake/pkg/pipeline"

	"github.com/gin-gonic/gin"
)

// Handlers serves read-only views of a running pipeline.
type Handlers struct {
	Pipeline *pipeline.Pipeline
	Monitor  *observability.Monitor
	Traces   *observability.Traces
}

func (h *Handlers) Health(c *gin.Context) {
	status := "running"
	code := http.StatusOK
	if h.Pipeline.Shutdown().Requested() {
		status = "stopping"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status})
}

func (h *Handlers) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, pipeline.Collect(h.Pipeline))
}

func (h *Handlers) GetPorts(c *gin.Context) {
	c.JSON(http.StatusOK, pipeline.Collect(h.Pipeline).Ports)
}

func (h *Handlers) GetPort(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid port id"})
		return
	}
	stats, err := h.Pipeline.NIC().PortStats(uint16(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, pipeline.PortReport{Port: uint16(id), Stats: stats})
}

func (h *Handlers) GetWorkers(c *gin.Context) {
	type receiverView struct {
		Port  uint16 `json:"port"`
		Queue uint16 `json:"queue"`
	}
	receivers := h.Pipeline.Receivers()
	out := make([]receiverView, 0, len(receivers))
	for _, r := range receivers {
		out = append(out, receiverView{Port: r.Port(), Queue: r.Queue()})
	}
	c.JSON(http.StatusOK, gin.H{
		"receivers": out,
		"consumers": len(h.Pipeline.Consumers()),
	})
}

func (h *Handlers) GetHistory(c *gin.Context) {
	if h.Monitor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history disabled"})
		return
	}
	c.JSON(http.StatusOK, h.Monitor.History().List())
}

func (h *Handlers) GetAlerts(c *gin.Context) {
	if h.Monitor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alerts disabled"})
		return
	}
	c.JSON(http.StatusOK, h.Monitor.Alerts().List())
}

func (h *Handlers) GetTraces(c *gin.Context) {
	if h.Traces == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "tracing disabled"})
		return
	}
	c.JSON(http.StatusOK, h.Traces.List())
}

package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"packet-intake/internal/logger"
)

type State int32

const (
	StateRunning State = iota
	StateStopping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

type CoordinatorOptions struct {
	Interval time.Duration
	Out      io.Writer
	// Exit ends the process after the final report. Defaults to os.Exit.
	Exit     func(code int)
	OnReport func(Report)
	Log      *logger.Logger
}

// Coordinator prints periodic stats and turns an interrupt into shutdown.
// Workers are not joined: the process exits right after the final report.
type Coordinator struct {
	pipeline *Pipeline
	interval time.Duration
	out      io.Writer
	exit     func(int)
	onReport func(Report)
	log      *logger.Logger

	mu    sync.Mutex
	state atomic.Int32
}

func NewCoordinator(p *Pipeline, opts CoordinatorOptions) *Coordinator {
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	return &Coordinator{
		pipeline: p,
		interval: opts.Interval,
		out:      opts.Out,
		exit:     opts.Exit,
		onReport: opts.OnReport,
		log:      opts.Log,
	}
}

// Run reports every interval until a signal arrives or ctx ends, then
// terminates.
func (c *Coordinator) Run(ctx context.Context, signals <-chan os.Signal) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if c.State() == StateRunning {
				c.Tick()
			}
		case sig := <-signals:
			c.Terminate(sig.String())
			return
		case <-ctx.Done():
			c.Terminate(context.Cause(ctx).Error())
			return
		}
	}
}

// Tick writes one report and hands it to the report hook.
func (c *Coordinator) Tick() Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emit(false)
}

func (c *Coordinator) emit(final bool) Report {
	rep := Collect(c.pipeline)
	rep.Final = final
	if _, err := rep.WriteTo(c.out); err != nil {
		c.log.Warn("stats report write failed", map[string]any{"error": err.Error()})
	}
	if c.onReport != nil {
		c.onReport(rep)
	}
	return rep
}

// Terminate sets the shutdown flag, prints the final report and calls the
// exit function. Only the first call has any effect.
func (c *Coordinator) Terminate(reason string) {
	if !c.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return
	}
	c.pipeline.Stop()
	c.log.Info("shutdown requested", map[string]any{"reason": reason})

	c.mu.Lock()
	fmt.Fprintf(c.out, "Caught signal %s\n", reason)
	rep := c.emit(true)
	fmt.Fprintf(c.out, "Total processed packets: %d\n", rep.Counters.Processed)
	c.mu.Unlock()

	c.state.Store(int32(StateTerminated))
	c.exit(0)
}

func (c *Coordinator) State() State {
	return State(c.state.Load())
}

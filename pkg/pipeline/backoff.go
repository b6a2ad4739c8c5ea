package pipeline

import (
	"fmt"
	"runtime"
	"time"
)

type IdleMode string

const (
	IdleSpin  IdleMode = "spin"
	IdleYield IdleMode = "yield"
	IdleSleep IdleMode = "sleep"
)

func ParseIdleMode(s string) (IdleMode, error) {
	switch m := IdleMode(s); m {
	case IdleSpin, IdleYield, IdleSleep:
		return m, nil
	case "":
		return IdleYield, nil
	}
	return "", fmt.Errorf("unknown idle backoff %q", s)
}

// Backoff is what a worker does after a poll that found nothing.
type Backoff struct {
	Mode  IdleMode
	Sleep time.Duration
}

func (b Backoff) Idle() {
	switch b.Mode {
	case IdleSpin:
	case IdleSleep:
		time.Sleep(b.Sleep)
	default:
		runtime.Gosched()
	}
}

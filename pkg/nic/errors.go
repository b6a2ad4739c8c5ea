package nic

import (
	"fmt"

	"github.com/pkg/errors"
)

// Stage names the port initialisation step that failed.
type Stage string

const (
	StageValidate    Stage = "validate"
	StageDeviceInfo  Stage = "device-info"
	StageDescriptors Stage = "descriptors"
	StageQueueSetup  Stage = "queue-setup"
	StageStart       Stage = "start"
	StageMACAddress  Stage = "mac-address"
	StagePromiscuous Stage = "promiscuous"
)

// PortError is a fatal port setup failure.
type PortError struct {
	Port  uint16
	Name  string
	Stage Stage
	Err   error
}

func (e *PortError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("port %d (%s): %s: %v", e.Port, e.Name, e.Stage, e.Err)
	}
	return fmt.Sprintf("port %d: %s: %v", e.Port, e.Stage, e.Err)
}

func (e *PortError) Unwrap() error { return e.Err }

// NewPortError records where the setup failed and attaches a stack trace.
func NewPortError(port uint16, name string, stage Stage, err error) error {
	return errors.WithStack(&PortError{Port: port, Name: name, Stage: stage, Err: err})
}

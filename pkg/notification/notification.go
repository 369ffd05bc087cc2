package notification

import (
	"time"
)

// Sender delivers a post-run summary to an external service.
type Sender interface {
	CanSend() bool
	Send(title string, description string, runTime time.Duration, fields []Field, dryRun bool) error
	Name() string
}

type Field struct {
	Name  string
	Value string
}

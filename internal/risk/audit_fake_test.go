package risk

import (
	"context"

	"github.com/lavente-auth/authcore/internal/audit"
)

// capturingLog is a minimal audit.Log fake that records every appended
// event, for assertions on risk-engine side effects.
type capturingLog struct {
	events []*audit.Event
}

func newCapturingLog() *capturingLog {
	return &capturingLog{}
}

func newCaptureLogger(backend *capturingLog) *audit.Logger {
	return audit.NewLogger(backend, nil)
}

func (c *capturingLog) Append(_ context.Context, e *audit.Event) error {
	c.events = append(c.events, e)
	return nil
}

func (c *capturingLog) FindByUser(_ context.Context, _ string, _ int) ([]*audit.Event, error) {
	return nil, nil
}

func (c *capturingLog) FindBySession(_ context.Context, _ string, _ int) ([]*audit.Event, error) {
	return nil, nil
}

func (c *capturingLog) FindByType(_ context.Context, _ audit.EventType, _ int) ([]*audit.Event, error) {
	return nil, nil
}

func (c *capturingLog) FindBySeverityInWindow(_ context.Context, _ audit.Severity, _ int, _ int) ([]*audit.Event, error) {
	return nil, nil
}

func (c *capturingLog) Recent(_ context.Context, _ int) ([]*audit.Event, error) {
	return nil, nil
}

func (c *capturingLog) VerifyChain(_ context.Context) error {
	return nil
}

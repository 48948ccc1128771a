// Package delivery renders a customer message request and hands it to the channel's sender.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/slotwise/slotwise/libs/events"
	"github.com/slotwise/slotwise/services/notification-service/internal/templates"
)

var ErrUnsupportedChannel = errors.New("unsupported channel")

type Sender interface {
	Send(ctx context.Context, to string, msg templates.Message) error
	ProviderID() string
}

type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

type Result struct {
	Status     Status
	ProviderID string
	Rendered   templates.Message
	Err        error
}

type Dispatcher struct {
	templates *templates.Set
	senders   map[string]Sender
	// FailSuffix simulates a provider failure for recipients ending with it.
	FailSuffix string
}

func NewDispatcher(set *templates.Set, senders map[string]Sender) *Dispatcher {
	return &Dispatcher{templates: set, senders: senders}
}

// Deliver never returns an error: every outcome is described by the Result.
func (d *Dispatcher) Deliver(ctx context.Context, req events.MessageRequested) Result {
	msg, err := d.templates.Render(req.Kind, req.TemplateData)
	if err != nil {
		return Result{Status: StatusFailed, Err: err}
	}
	sender, ok := d.senders[req.Channel]
	if !ok || sender == nil {
		return Result{Status: StatusFailed, Rendered: msg, Err: fmt.Errorf("%w: %s", ErrUnsupportedChannel, req.Channel)}
	}
	if d.FailSuffix != "" && strings.HasSuffix(req.Recipient, d.FailSuffix) {
		return Result{Status: StatusFailed, Rendered: msg, ProviderID: sender.ProviderID(), Err: errors.New("simulated failure")}
	}
	if err := sender.Send(ctx, req.Recipient, msg); err != nil {
		return Result{Status: StatusFailed, Rendered: msg, ProviderID: sender.ProviderID(), Err: err}
	}
	return Result{Status: StatusSent, Rendered: msg, ProviderID: sender.ProviderID()}
}

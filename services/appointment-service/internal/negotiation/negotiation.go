// Package negotiation implements the reschedule protocol between a workspace and a customer.
// Transitions are pure functions over *model.Appointment; persistence and messaging
// belong to the caller.
package negotiation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/slotwise/slotwise/libs/events"
	"github.com/slotwise/slotwise/services/appointment-service/internal/clock"
	"github.com/slotwise/slotwise/services/appointment-service/internal/model"
)

var (
	ErrTerminal          = errors.New("appointment is in a terminal status")
	ErrNoPendingProposal = errors.New("no pending reschedule proposal")
	ErrWrongParty        = errors.New("action not allowed for this party")
	ErrInvalidProposal   = errors.New("invalid reschedule proposal")
	ErrNotPending        = errors.New("appointment is not pending")
	ErrNoResponse        = errors.New("no customer response to acknowledge")
	ErrProposalOpen      = errors.New("appointment has an open reschedule proposal")
)

type Kind string

const (
	KindProposed         Kind = "proposed"
	KindConfirmed        Kind = "confirmed"
	KindDeclined         Kind = "declined"
	KindAcknowledged     Kind = "acknowledged"
	KindCancelled        Kind = "cancelled"
	KindBookingConfirmed Kind = "booking_confirmed"
)

// Outcome describes what a transition did. Message is the customer notice to send, if any.
// Entries lists the history rows appended, in order.
type Outcome struct {
	Kind         Kind
	RescheduleID string
	Entries      []model.HistoryEntry
	Message      string
	Noop         bool
}

type Request struct {
	Date     string
	Time     string
	Duration int
	Staff    model.StaffPreference
}

func (r Request) validate() error {
	if _, err := clock.ParseDate(r.Date); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProposal, err)
	}
	if !clock.ValidClock(r.Time) {
		return fmt.Errorf("%w: invalid time %q", ErrInvalidProposal, r.Time)
	}
	if r.Duration <= 0 || r.Duration >= clock.MinutesPerDay {
		return fmt.Errorf("%w: duration must be between 1 and 1439 minutes", ErrInvalidProposal)
	}
	return nil
}

type Negotiator struct {
	Now   func() time.Time
	NewID func() string
}

func New() *Negotiator {
	return &Negotiator{
		Now:   func() time.Time { return time.Now().UTC() },
		NewID: uuid.NewString,
	}
}

// Propose opens a new proposal from by. Any unresolved proposal is closed as superseded.
// A customer proposal forces the appointment to pending and remembers the status it replaced.
func (n *Negotiator) Propose(a *model.Appointment, by model.Party, req Request) (Outcome, error) {
	if by != model.PartyWorkspace && by != model.PartyCustomer {
		return Outcome{}, ErrWrongParty
	}
	if a.Status.Terminal() {
		return Outcome{}, ErrTerminal
	}
	if err := req.validate(); err != nil {
		return Outcome{}, err
	}
	now := n.Now()
	out := Outcome{Kind: KindProposed}

	prevStatus := a.Status
	if open, ok := a.Ledger.Proposal(); ok {
		if open.InitiatedBy == model.PartyCustomer && open.PreviousStatus != "" {
			prevStatus = open.PreviousStatus
		}
		out.Entries = append(out.Entries, n.close(a, open, model.OutcomeSuperseded, now))
	}

	normalized, _ := clock.Normalize(req.Time)
	p := model.Proposal{
		RescheduleID: n.NewID(),
		InitiatedBy:  by,
		Date:         req.Date,
		Time:         normalized,
		Duration:     req.Duration,
		Staff:        req.Staff,
		InitiatedAt:  now,
	}
	if by == model.PartyCustomer {
		p.PreviousStatus = prevStatus
		a.Status = model.StatusPending
	} else {
		a.Status = prevStatus
		out.Message = events.MessageRescheduleProposed
	}
	a.Ledger.Open(p)
	out.RescheduleID = p.RescheduleID
	return out, nil
}

// Confirm accepts the counterparty's proposal and commits it onto the schedule.
func (n *Negotiator) Confirm(a *model.Appointment, by model.Party) (Outcome, error) {
	p, err := counterpartyProposal(a, by)
	if err != nil {
		return Outcome{}, err
	}
	now := n.Now()
	entry := n.close(a, p, model.OutcomeConfirmed, now)

	a.Date, a.Time, a.Duration, a.Staff = p.Date, p.Time, p.Duration, p.Staff
	if by == model.PartyCustomer {
		a.Ledger.Respond(model.Response{Action: model.OutcomeConfirmed, At: now, RescheduleID: p.RescheduleID})
	} else {
		a.Status = model.StatusConfirmed
	}
	return Outcome{
		Kind:         KindConfirmed,
		RescheduleID: p.RescheduleID,
		Entries:      []model.HistoryEntry{entry},
		Message:      events.MessageRescheduleConfirmed,
	}, nil
}

// Decline rejects the counterparty's proposal. The schedule is left untouched.
func (n *Negotiator) Decline(a *model.Appointment, by model.Party) (Outcome, error) {
	p, err := counterpartyProposal(a, by)
	if err != nil {
		return Outcome{}, err
	}
	now := n.Now()
	entry := n.close(a, p, model.OutcomeDeclined, now)

	if by == model.PartyCustomer {
		a.Ledger.Respond(model.Response{Action: model.OutcomeDeclined, At: now, RescheduleID: p.RescheduleID})
	} else if p.PreviousStatus != "" {
		a.Status = p.PreviousStatus
	}
	return Outcome{
		Kind:         KindDeclined,
		RescheduleID: p.RescheduleID,
		Entries:      []model.HistoryEntry{entry},
		Message:      events.MessageRescheduleDeclined,
	}, nil
}

// Acknowledge clears the customer's response once the workspace has seen it.
func (n *Negotiator) Acknowledge(a *model.Appointment, by model.Party) (Outcome, error) {
	if by != model.PartyWorkspace {
		return Outcome{}, ErrWrongParty
	}
	if a.Status.Terminal() {
		return Outcome{}, ErrTerminal
	}
	r, ok := a.Ledger.Response()
	if !ok {
		return Outcome{}, ErrNoResponse
	}
	a.Ledger.Clear()
	return Outcome{Kind: KindAcknowledged, RescheduleID: r.RescheduleID}, nil
}

// Cancel moves any non-terminal appointment to cancelled and closes an open proposal.
// Cancelling twice is a no-op.
func (n *Negotiator) Cancel(a *model.Appointment) (Outcome, error) {
	if a.Status == model.StatusCancelled {
		return Outcome{Kind: KindCancelled, Noop: true}, nil
	}
	if a.Status.Terminal() {
		return Outcome{}, ErrTerminal
	}
	out := Outcome{Kind: KindCancelled, Message: events.MessageCancelled}
	if p, ok := a.Ledger.Proposal(); ok {
		out.Entries = append(out.Entries, n.close(a, p, model.OutcomeCancelled, n.Now()))
		out.RescheduleID = p.RescheduleID
	}
	a.Ledger.Clear()
	a.Status = model.StatusCancelled
	return out, nil
}

// ConfirmBooking is the plain pending to confirmed transition. A customer proposal must be
// resolved through Confirm instead.
func (n *Negotiator) ConfirmBooking(a *model.Appointment, by model.Party) (Outcome, error) {
	if by != model.PartyWorkspace {
		return Outcome{}, ErrWrongParty
	}
	if a.Status.Terminal() {
		return Outcome{}, ErrTerminal
	}
	if a.Ledger.Kind() == model.CustomerProposed {
		return Outcome{}, ErrProposalOpen
	}
	if a.Status != model.StatusPending {
		return Outcome{}, ErrNotPending
	}
	a.Status = model.StatusConfirmed
	return Outcome{Kind: KindBookingConfirmed, Message: events.MessageBookingConfirmed}, nil
}

func counterpartyProposal(a *model.Appointment, by model.Party) (model.Proposal, error) {
	if a.Status.Terminal() {
		return model.Proposal{}, ErrTerminal
	}
	if by != model.PartyWorkspace && by != model.PartyCustomer {
		return model.Proposal{}, ErrWrongParty
	}
	p, ok := a.Ledger.Proposal()
	if !ok {
		return model.Proposal{}, ErrNoPendingProposal
	}
	if p.InitiatedBy == by {
		return model.Proposal{}, ErrWrongParty
	}
	return p, nil
}

// close appends the history row for p and clears it from the ledger.
func (n *Negotiator) close(a *model.Appointment, p model.Proposal, outcome model.Outcome, at time.Time) model.HistoryEntry {
	memberID, _ := p.Staff.MemberID()
	entry := model.HistoryEntry{
		RescheduleID: p.RescheduleID,
		InitiatedBy:  p.InitiatedBy,
		PreviousDate: a.Date,
		PreviousTime: a.Time,
		NewDate:      p.Date,
		NewTime:      p.Time,
		NewEndTime:   clock.CalculateEndTime(p.Time, p.Duration),
		TeamMemberID: memberID,
		Outcome:      outcome,
		RequestedAt:  p.InitiatedAt,
		ResolvedAt:   at,
	}
	a.Ledger.Clear()
	a.Ledger.Append(entry)
	return entry
}

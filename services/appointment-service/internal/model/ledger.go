package model

import (
	"time"

	"github.com/slotwise/slotwise/libs/events"
)

type Party string

const (
	PartyWorkspace Party = "workspace"
	PartyCustomer  Party = "customer"
)

type LedgerKind int

const (
	Idle LedgerKind = iota
	CustomerProposed
	WorkspaceProposed
	CustomerResponded
)

func (k LedgerKind) String() string {
	switch k {
	case CustomerProposed:
		return "customer_proposed"
	case WorkspaceProposed:
		return "workspace_proposed"
	case CustomerResponded:
		return "customer_responded"
	default:
		return "idle"
	}
}

type Outcome string

const (
	OutcomeConfirmed  Outcome = "confirmed"
	OutcomeDeclined   Outcome = "declined"
	OutcomeSuperseded Outcome = "superseded"
	OutcomeCancelled  Outcome = "cancelled"
)

// Proposal is an unresolved reschedule offer. PreviousStatus is only set on customer
// proposals, which force the appointment to pending.
type Proposal struct {
	RescheduleID   string
	InitiatedBy    Party
	Date           string
	Time           string
	Duration       int
	Staff          StaffPreference
	InitiatedAt    time.Time
	PreviousStatus Status
}

// Response is the customer's answer to a workspace proposal, kept until the workspace acknowledges it.
type Response struct {
	Action       Outcome
	At           time.Time
	RescheduleID string
}

type HistoryEntry struct {
	RescheduleID string
	InitiatedBy  Party
	PreviousDate string
	PreviousTime string
	NewDate      string
	NewTime      string
	NewEndTime   string
	TeamMemberID string
	Outcome      Outcome
	RequestedAt  time.Time
	ResolvedAt   time.Time
}

// Ledger is the negotiation state of one appointment. Exactly one of proposal and
// response is set for the non-idle kinds; history only grows.
type Ledger struct {
	kind     LedgerKind
	proposal *Proposal
	response *Response
	history  []HistoryEntry

	// decoded bag, kept so keys owned by other writers survive a rewrite
	base events.Metadata
}

func (l *Ledger) Kind() LedgerKind { return l.kind }

func (l *Ledger) Proposal() (Proposal, bool) {
	if l.proposal == nil {
		return Proposal{}, false
	}
	return *l.proposal, true
}

func (l *Ledger) Response() (Response, bool) {
	if l.response == nil {
		return Response{}, false
	}
	return *l.response, true
}

func (l *Ledger) History() []HistoryEntry {
	out := make([]HistoryEntry, len(l.history))
	copy(out, l.history)
	return out
}

// Open installs p as the single pending proposal, replacing whatever state was there.
func (l *Ledger) Open(p Proposal) {
	l.kind = WorkspaceProposed
	if p.InitiatedBy == PartyCustomer {
		l.kind = CustomerProposed
	}
	l.proposal = &p
	l.response = nil
}

func (l *Ledger) Respond(r Response) {
	l.kind = CustomerResponded
	l.proposal = nil
	l.response = &r
}

func (l *Ledger) Clear() {
	l.kind = Idle
	l.proposal = nil
	l.response = nil
}

func (l *Ledger) Append(e HistoryEntry) {
	l.history = append(l.history, e)
}

func (l Ledger) clone() Ledger {
	c := l
	if l.proposal != nil {
		p := *l.proposal
		c.proposal = &p
	}
	if l.response != nil {
		r := *l.response
		c.response = &r
	}
	c.history = l.History()
	return c
}

// Package messaging turns negotiation outcomes into customer message requests.
// Nothing is sent from here; requests travel through the outbox.
package messaging

import (
	"errors"
	"strconv"

	"github.com/slotwise/slotwise/libs/events"
	"github.com/slotwise/slotwise/libs/outbox"
	"github.com/slotwise/slotwise/services/appointment-service/internal/clock"
	"github.com/slotwise/slotwise/services/appointment-service/internal/model"
	"github.com/slotwise/slotwise/services/appointment-service/internal/negotiation"
)

// ErrNoRecipient means the customer has no contact for any enabled channel.
var ErrNoRecipient = errors.New("customer has no reachable channel")

var DefaultChannels = []string{events.ChannelTelegram, events.ChannelSMS, events.ChannelEmail}

type Context struct {
	Workspace *model.Workspace
	Members   []model.TeamMember
	Reason    string
}

type Builder struct {
	// Channels in order of preference; the first one the customer can be reached on wins.
	Channels []string
}

// Build returns the outbox event for out's customer message. ok is false when the
// outcome sends nothing.
func (b Builder) Build(a *model.Appointment, out negotiation.Outcome, c Context) (evt outbox.Event, ok bool, err error) {
	if out.Message == "" {
		return outbox.Event{}, false, nil
	}
	channel, recipient, err := b.route(a)
	if err != nil {
		return outbox.Event{}, false, err
	}

	req := events.MessageRequested{
		AppointmentID: a.ID,
		WorkspaceID:   a.WorkspaceID,
		Kind:          out.Message,
		Channel:       channel,
		Recipient:     recipient,
		TemplateData:  templateData(a, out, c),
	}
	evt, err = outbox.NewEvent("appointment", a.ID, "messaging.customer.requested", events.TopicMessageRequested, req)
	if err != nil {
		return outbox.Event{}, false, err
	}
	return evt, true, nil
}

func (b Builder) route(a *model.Appointment) (string, string, error) {
	channels := b.Channels
	if len(channels) == 0 {
		channels = DefaultChannels
	}
	for _, ch := range channels {
		switch ch {
		case events.ChannelTelegram:
			if a.CustomerTelegramChatID != 0 {
				return ch, strconv.FormatInt(a.CustomerTelegramChatID, 10), nil
			}
		case events.ChannelSMS:
			if a.CustomerPhone != "" {
				return ch, a.CustomerPhone, nil
			}
		case events.ChannelEmail:
			if a.CustomerEmail != "" {
				return ch, a.CustomerEmail, nil
			}
		}
	}
	return "", "", ErrNoRecipient
}

func templateData(a *model.Appointment, out negotiation.Outcome, c Context) events.TemplateData {
	cycle := clock.H24
	business := ""
	if c.Workspace != nil {
		cycle = clock.PreferredHourCycle(c.Workspace.Locale)
		business = c.Workspace.Name
	}
	td := events.TemplateData{
		CustomerName: a.CustomerName,
		BusinessName: business,
		ServiceName:  a.ServiceName,
		Date:         longDate(a.Date),
		Time:         clock.FormatClock(a.Time, cycle),
		StaffName:    staffName(a.Staff, c.Members),
		Reason:       c.Reason,
	}

	switch out.Message {
	case events.MessageRescheduleProposed:
		if p, ok := a.Ledger.Proposal(); ok {
			td.ProposedDate = longDate(p.Date)
			td.ProposedTime = clock.FormatClock(p.Time, cycle)
			if name := staffName(p.Staff, c.Members); name != "" {
				td.StaffName = name
			}
		}
	case events.MessageRescheduleDeclined:
		if n := len(out.Entries); n > 0 {
			e := out.Entries[n-1]
			td.ProposedDate = longDate(e.NewDate)
			td.ProposedTime = clock.FormatClock(e.NewTime, cycle)
		}
	}
	return td
}

func staffName(p model.StaffPreference, members []model.TeamMember) string {
	id, ok := p.MemberID()
	if !ok {
		return ""
	}
	for _, m := range members {
		if m.ID == id {
			return m.Name
		}
	}
	return ""
}

func longDate(s string) string {
	d, err := clock.ParseDate(s)
	if err != nil {
		return s
	}
	return clock.FormatDateLong(d)
}

// Package calendar lays appointments out on a day or week time-slot grid.
package calendar

import (
	"math"
	"sort"
	"time"

	"github.com/slotwise/slotwise/services/appointment-service/internal/clock"
	"github.com/slotwise/slotwise/services/appointment-service/internal/model"
)

type View string

const (
	ViewDay  View = "day"
	ViewWeek View = "week"
)

type Layout string

const (
	// LayoutStack draws overlapping blocks on top of each other, ordered by ZIndex.
	LayoutStack Layout = "stack"
	// LayoutColumns splits overlapping blocks into side-by-side lanes.
	LayoutColumns Layout = "columns"
)

const UnassignedColumnID = "unassigned"

type Options struct {
	Layout   Layout
	SlotStep int
	// Hours for columns that have no hours of their own (the unassigned column).
	WorkspaceHours model.WeeklyHours
	HourCycle      clock.HourCycle
}

type Grid struct {
	View    View     `json:"view"`
	Date    string   `json:"date"`
	From    string   `json:"from"`
	To      string   `json:"to"`
	Slots   []string `json:"slots"`
	Columns []Column `json:"columns"`
}

type Column struct {
	ID    string    `json:"id"`
	Label string    `json:"label"`
	Date  string    `json:"date"`
	Cells []Cell    `json:"cells"`
	Hours []HourRow `json:"hours"`
}

type Cell struct {
	Slot      string `json:"slot"`
	Label     string `json:"label"`
	Available bool   `json:"available"`
}

type HourRow struct {
	Hour   string  `json:"hour"`
	Blocks []Block `json:"blocks"`
}

type Block struct {
	AppointmentID   string `json:"appointmentId"`
	CustomerName    string `json:"customerName"`
	ServiceName     string `json:"serviceName,omitempty"`
	Status          string `json:"status"`
	Start           string `json:"start"`
	End             string `json:"end"`
	Duration        int    `json:"duration"`
	Top             string `json:"top"`
	Height          string `json:"height"`
	Left            string `json:"left"`
	Width           string `json:"width"`
	ZIndex          int    `json:"zIndex"`
	PendingProposal string `json:"pendingProposal,omitempty"`
}

// BuildDay renders one column per team member. Appointments without a known member
// go to an extra unassigned column, added only when needed.
func BuildDay(date time.Time, members []model.TeamMember, appts []model.Appointment, opts Options) Grid {
	day := date.Format(clock.DateLayout)
	slots := clock.TimeSlotLabels(opts.SlotStep)
	onDay := forDate(appts, day)

	known := make(map[string]bool, len(members))
	byMember := map[string][]model.Appointment{}
	for _, m := range members {
		known[m.ID] = true
	}
	var unassigned []model.Appointment
	for _, a := range onDay {
		if id, ok := a.Staff.MemberID(); ok && known[id] {
			byMember[id] = append(byMember[id], a)
			continue
		}
		unassigned = append(unassigned, a)
	}

	g := Grid{View: ViewDay, Date: day, From: day, To: day, Slots: slots}
	for _, m := range members {
		g.Columns = append(g.Columns, buildColumn(m.ID, m.Name, date, m.Hours, byMember[m.ID], slots, opts))
	}
	if len(unassigned) > 0 {
		g.Columns = append(g.Columns, buildColumn(UnassignedColumnID, "Unassigned", date, opts.WorkspaceHours, unassigned, slots, opts))
	}
	return g
}

// BuildWeek renders seven Sunday-start day columns shaded by workspace hours.
func BuildWeek(date time.Time, hours model.WeeklyHours, appts []model.Appointment, opts Options) Grid {
	slots := clock.TimeSlotLabels(opts.SlotStep)
	start, end := clock.WeekRange(date)
	g := Grid{
		View:  ViewWeek,
		Date:  date.Format(clock.DateLayout),
		From:  start.Format(clock.DateLayout),
		To:    end.Format(clock.DateLayout),
		Slots: slots,
	}
	for _, d := range clock.WeekDays(date) {
		id := d.Format(clock.DateLayout)
		g.Columns = append(g.Columns, buildColumn(id, clock.FormatDateShort(d), d, hours, forDate(appts, id), slots, opts))
	}
	return g
}

func buildColumn(id, label string, date time.Time, hours model.WeeklyHours, appts []model.Appointment, slots []string, opts Options) Column {
	col := Column{ID: id, Label: label, Date: date.Format(clock.DateLayout)}
	for _, s := range slots {
		col.Cells = append(col.Cells, Cell{
			Slot:      s,
			Label:     clock.FormatClock(s, opts.HourCycle),
			Available: hours.Available(date.Weekday(), clock.TimeToMinutes(s)),
		})
	}

	lanes := map[string]lane{}
	if opts.Layout == LayoutColumns {
		lanes = packLanes(appts)
	}
	for h := 0; h < 24; h++ {
		row := HourRow{Hour: clock.FromMinutes(h * 60), Blocks: []Block{}}
		for _, a := range overlappingHour(appts, h*60) {
			d := clock.CalculateAppointmentDisplay(a.Time, a.Duration, h*60)
			if d == nil {
				continue
			}
			row.Blocks = append(row.Blocks, block(a, *d, lanes[a.ID]))
		}
		col.Hours = append(col.Hours, row)
	}
	return col
}

func block(a model.Appointment, d clock.Display, ln lane) Block {
	b := Block{
		AppointmentID: a.ID,
		CustomerName:  a.CustomerName,
		ServiceName:   a.ServiceName,
		Status:        string(a.Status),
		Start:         a.Time,
		End:           a.EndTime(),
		Duration:      a.Duration,
		Top:           d.Top,
		Height:        d.Height,
		Left:          "0%",
		Width:         "100%",
		ZIndex:        10,
	}
	if a.Duration >= 60 {
		b.ZIndex = 20
	}
	if ln.of > 1 {
		b.Left = clock.Percent(round4(float64(ln.index*100) / float64(ln.of)))
		b.Width = clock.Percent(round4(100 / float64(ln.of)))
	}
	switch a.Ledger.Kind() {
	case model.CustomerProposed:
		b.PendingProposal = string(model.PartyCustomer)
	case model.WorkspaceProposed:
		b.PendingProposal = string(model.PartyWorkspace)
	}
	return b
}

// overlappingHour keeps appointments whose [start, end) intersects [hourStart, hourStart+60).
func overlappingHour(appts []model.Appointment, hourStart int) []model.Appointment {
	var out []model.Appointment
	for _, a := range appts {
		start := a.StartMinutes()
		if start < hourStart+60 && start+a.Duration > hourStart {
			out = append(out, a)
		}
	}
	return out
}

func forDate(appts []model.Appointment, day string) []model.Appointment {
	var out []model.Appointment
	for _, a := range appts {
		if a.Date == day && a.Status != model.StatusCancelled {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartMinutes() < out[j].StartMinutes() })
	return out
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

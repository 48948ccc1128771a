package events

import (
	"encoding/json"
	"time"
)

const (
	keyPendingReschedule          = "pending_reschedule"
	keyWorkspacePendingReschedule = "workspace_pending_reschedule"
	keyWorkspaceRescheduleAction  = "workspace_reschedule_action"
	keyCurrentReschedule          = "current_reschedule"
	keyRescheduleHistory          = "reschedule_history"
)

type Proposal struct {
	RescheduleID         string    `json:"reschedule_id"`
	NewDate              string    `json:"new_date"`
	NewTime              string    `json:"new_time"`
	NewEndTime           string    `json:"new_end_time"`
	TeamMemberID         string    `json:"team_member_id,omitempty"`
	TeamMemberPreference string    `json:"team_member_preference"`
	InitiatedAt          time.Time `json:"initiated_at"`
	PreviousStatus       string    `json:"previous_status,omitempty"`
}

type Action struct {
	Action       string    `json:"action"`
	Timestamp    time.Time `json:"timestamp"`
	RescheduleID string    `json:"reschedule_id"`
}

type HistoryEntry struct {
	RescheduleID string    `json:"reschedule_id"`
	InitiatedBy  string    `json:"initiated_by"`
	PreviousDate string    `json:"previous_date"`
	PreviousTime string    `json:"previous_time"`
	NewDate      string    `json:"new_date"`
	NewTime      string    `json:"new_time"`
	NewEndTime   string    `json:"new_end_time"`
	TeamMemberID string    `json:"team_member_id,omitempty"`
	Outcome      string    `json:"outcome"`
	RequestedAt  time.Time `json:"requested_at"`
	ResolvedAt   time.Time `json:"resolved_at"`
}

// Metadata is the appointment's JSONB bag. Keys it does not know are kept verbatim
// so other writers of the column are not clobbered.
type Metadata struct {
	PendingReschedule          *Proposal
	WorkspacePendingReschedule *Proposal
	WorkspaceRescheduleAction  *Action
	CurrentReschedule          *HistoryEntry
	RescheduleHistory          []HistoryEntry

	extra map[string]json.RawMessage
}

func (m Metadata) HasPendingReschedule() bool          { return m.PendingReschedule != nil }
func (m Metadata) HasWorkspacePendingReschedule() bool { return m.WorkspacePendingReschedule != nil }
func (m Metadata) HasWorkspaceRescheduleAction() bool  { return m.WorkspaceRescheduleAction != nil }

func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.extra)+5)
	for k, v := range m.extra {
		out[k] = v
	}
	if m.PendingReschedule != nil {
		out[keyPendingReschedule] = m.PendingReschedule
	}
	if m.WorkspacePendingReschedule != nil {
		out[keyWorkspacePendingReschedule] = m.WorkspacePendingReschedule
	}
	if m.WorkspaceRescheduleAction != nil {
		out[keyWorkspaceRescheduleAction] = m.WorkspaceRescheduleAction
	}
	if m.CurrentReschedule != nil {
		out[keyCurrentReschedule] = m.CurrentReschedule
	}
	if len(m.RescheduleHistory) > 0 {
		out[keyRescheduleHistory] = m.RescheduleHistory
	}
	return json.Marshal(out)
}

func (m *Metadata) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = Metadata{}
	for k, v := range raw {
		if isNull(v) {
			continue
		}
		var err error
		switch k {
		case keyPendingReschedule:
			err = json.Unmarshal(v, &m.PendingReschedule)
		case keyWorkspacePendingReschedule:
			err = json.Unmarshal(v, &m.WorkspacePendingReschedule)
		case keyWorkspaceRescheduleAction:
			err = json.Unmarshal(v, &m.WorkspaceRescheduleAction)
		case keyCurrentReschedule:
			err = json.Unmarshal(v, &m.CurrentReschedule)
		case keyRescheduleHistory:
			err = json.Unmarshal(v, &m.RescheduleHistory)
		default:
			if m.extra == nil {
				m.extra = map[string]json.RawMessage{}
			}
			m.extra[k] = v
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || string(v) == "null"
}

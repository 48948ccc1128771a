package model

import (
	"errors"
	"strings"
)

const (
	PreferenceSpecific = "specific"
	PreferenceAny      = "any"
)

var ErrInvalidStaffPreference = errors.New("invalid team member preference")

// StaffPreference is either a specific team member or "any available". The zero value is AnyAvailable.
type StaffPreference struct {
	memberID string
}

func Specific(teamMemberID string) StaffPreference {
	return StaffPreference{memberID: teamMemberID}
}

func AnyAvailable() StaffPreference {
	return StaffPreference{}
}

func (p StaffPreference) IsAny() bool {
	return p.memberID == ""
}

func (p StaffPreference) MemberID() (string, bool) {
	return p.memberID, p.memberID != ""
}

func (p StaffPreference) Preference() string {
	if p.IsAny() {
		return PreferenceAny
	}
	return PreferenceSpecific
}

// ParseStaffPreference decodes the wire pair. "specific" without an id is rejected;
// an empty preference is inferred from whether an id is present.
func ParseStaffPreference(preference, teamMemberID string) (StaffPreference, error) {
	id := strings.TrimSpace(teamMemberID)
	switch strings.TrimSpace(preference) {
	case PreferenceSpecific:
		if id == "" {
			return StaffPreference{}, ErrInvalidStaffPreference
		}
		return Specific(id), nil
	case PreferenceAny:
		return AnyAvailable(), nil
	case "":
		if id != "" {
			return Specific(id), nil
		}
		return AnyAvailable(), nil
	default:
		return StaffPreference{}, ErrInvalidStaffPreference
	}
}

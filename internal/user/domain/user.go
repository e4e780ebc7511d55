package domain

import (
	"encoding/json"
	"strings"
)

// Profile is the cached, denormalized view of the authenticated customer.
// Empty strings mean the server has not supplied the field.
type Profile struct {
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Gender      string `json:"gender,omitempty"`
	DOB         string `json:"dob,omitempty"`
	BaseAddress string `json:"baseAddress,omitempty"`
	Pincode     string `json:"pincode,omitempty"`
	Status      Status `json:"status,omitempty"`
}

// ProfilePatch carries the fields to merge into a cached Profile. Nil fields are left untouched.
type ProfilePatch struct {
	Name        *string
	Email       *string
	PhoneNumber *string
	Avatar      *string
	Gender      *string
	DOB         *string
	BaseAddress *string
	Pincode     *string
	Status      *Status
}

// Apply merges the non-nil fields of p into u.
func (p ProfilePatch) Apply(u *Profile) {
	if u == nil {
		return
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&u.Name, p.Name)
	set(&u.Email, p.Email)
	set(&u.PhoneNumber, p.PhoneNumber)
	set(&u.Avatar, p.Avatar)
	set(&u.Gender, p.Gender)
	set(&u.DOB, p.DOB)
	set(&u.BaseAddress, p.BaseAddress)
	set(&u.Pincode, p.Pincode)
	if p.Status != nil {
		u.Status = *p.Status
	}
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p == ProfilePatch{}
}

// Status is the server-assigned profile-completion marker. The client never derives it.
type Status int

const (
	// StatusUnset means no status was reported (absent field).
	StatusUnset Status = iota
	StatusInitiated
	StatusVerified
	StatusStep1
	StatusCompleted
	// StatusUnknown is a reported value this client does not recognize.
	StatusUnknown
)

var statusNames = map[Status]string{
	StatusInitiated: "INITIATED",
	StatusVerified:  "VERIFIED",
	StatusStep1:     "STEP1",
	StatusCompleted: "COMPLETED",
}

// ParseStatus maps the wire value to a Status. Matching is case-insensitive;
// empty input is StatusUnset and anything unrecognized is StatusUnknown.
func ParseStatus(s string) Status {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return StatusUnset
	}
	for st, name := range statusNames {
		if name == s {
			return st
		}
	}
	return StatusUnknown
}

// String returns the wire value, "" for StatusUnset and "UNKNOWN" for unrecognized values.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	if s == StatusUnset {
		return ""
	}
	return "UNKNOWN"
}

// Known reports whether s is one of the four server statuses.
func (s Status) Known() bool {
	_, ok := statusNames[s]
	return ok
}

// MarshalJSON encodes the wire value; StatusUnset encodes as "".
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a wire string via ParseStatus. null decodes as StatusUnset and any
// non-string value as StatusUnknown.
func (s *Status) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = StatusUnset
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		*s = StatusUnknown
		return nil
	}
	*s = ParseStatus(raw)
	return nil
}

package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Status is the validation state of an attendance record. The zero value is
// not a valid status; values only enter through ParseStatus, UnmarshalText
// or Scan.
type Status uint8

const (
	statusUnknown Status = iota
	StatusValid
	StatusInvalid
	StatusPending
	StatusApproved
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "VALID"
	case StatusInvalid:
		return "INVALID"
	case StatusPending:
		return "PENDING"
	case StatusApproved:
		return "APPROVED"
	case StatusRejected:
		return "REJECTED"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

func ParseStatus(v string) (Status, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "VALID":
		return StatusValid, nil
	case "INVALID":
		return StatusInvalid, nil
	case "PENDING":
		return StatusPending, nil
	case "APPROVED":
		return StatusApproved, nil
	case "REJECTED":
		return StatusRejected, nil
	default:
		return statusUnknown, fmt.Errorf("invalid status %q", v)
	}
}

func (s Status) IsValid() bool {
	switch s {
	case StatusValid, StatusInvalid, StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// IsInitial reports whether s can be assigned at check-in time.
func (s Status) IsInitial() bool {
	switch s {
	case StatusValid, StatusInvalid, StatusPending:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s was set by an admin verification.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// CanVerifyTo reports whether an admin may move a record from s to next.
// Only PENDING and INVALID records are verifiable, and only into a terminal state.
func (s Status) CanVerifyTo(next Status) bool {
	switch s {
	case StatusPending, StatusInvalid:
		return next.IsTerminal()
	case StatusValid, StatusApproved, StatusRejected:
		return false
	default:
		return false
	}
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Scan implements sql.Scanner; pgx uses it for the status column.
func (s *Status) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	case nil:
		return fmt.Errorf("status is null")
	default:
		return fmt.Errorf("cannot scan %T into Status", src)
	}
}

func (s Status) Value() (driver.Value, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("invalid status %d", uint8(s))
	}
	return s.String(), nil
}

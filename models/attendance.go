package models

import "time"

type Attendance struct {
	ID               int64      `json:"id"`
	UserID           string     `json:"userId"`
	CheckIn          time.Time  `json:"checkIn"`
	CheckOut         *time.Time `json:"checkOut"`
	Latitude         *float64   `json:"latitude"`
	Longitude        *float64   `json:"longitude"`
	AccuracyM        *float64   `json:"accuracyM"`
	PhotoRef         *string    `json:"buktiFoto"`
	GeofenceID       *int64     `json:"geofenceId"`
	DistanceM        *float64   `json:"distanceM"`
	InsideGeofence   *bool      `json:"insideGeofence"`
	Status           Status     `json:"status"`
	StatusReason     string     `json:"statusReason"`
	SuspiciousFlag   bool       `json:"suspiciousFlag"`
	SuspiciousReason *string    `json:"suspiciousReason"`
	ServerTimestamp  time.Time  `json:"serverTimestamp"`
	ClientTimestamp  *time.Time `json:"clientTimestamp"`
	VerifiedBy       *string    `json:"verifiedBy"`
	VerifiedAt       *time.Time `json:"verifiedAt"`
	VerificationNote *string    `json:"verificationNote"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`

	User *UserRef `json:"user,omitempty"`
}

// IsOpen reports whether the record still waits for a check-out.
func (a *Attendance) IsOpen() bool {
	return a.CheckOut == nil
}

// LastFix is the most recent prior attendance that carried coordinates.
type LastFix struct {
	AttendanceID int64
	Latitude     float64
	Longitude    float64
	CheckIn      time.Time
}

type AttendanceFilter struct {
	UserID     string
	Status     *Status
	From       *time.Time
	To         *time.Time
	Suspicious bool
	NameLike   string
	Page       int
	Limit      int
	// OldestFirst flips the default newest-first order.
	OldestFirst bool
}

func (f AttendanceFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

func NewPagination(page, limit int, total int64) Pagination {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	if pages == 0 {
		pages = 1
	}
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

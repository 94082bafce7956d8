package class

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusDenied:
		return true
	default:
		return false
	}
}

// Terminal reports whether a listing has left the review queue. Denied is
// terminal in the current flow (re-submission is not supported).
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDenied
}

var (
	ErrNotFound      = errors.New("class not found")
	ErrInvalidStatus = errors.New("invalid class status")
)

type Class struct {
	ID              string    `json:"id"`
	InstructorEmail string    `json:"instructorEmail"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	PriceMinor      int64     `json:"priceMinor"`
	Status          Status    `json:"status"`
	Feedback        string    `json:"feedback,omitempty"`
	EnrollmentCount int       `json:"enrollmentCount"`
	// Filled from the external profile directory on read paths; never stored.
	InstructorPhotoURL string    `json:"instructorPhotoUrl,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// with pointers if optional, it will be nil
type ListFilter struct {
	Status     *Status
	Instructor *string
	Top        int // >0 means "top N by enrollment"
	Limit      int
	Offset     int
}

type CreateRequest struct {
	InstructorEmail string `json:"-"`
	Title           string `json:"title" binding:"required,min=3,max=120"`
	Description     string `json:"description" binding:"omitempty,max=1000"`
	PriceMinor      int64  `json:"priceMinor" binding:"required,min=0,max=10000000"`
}

// ReviewRequest carries the admin decision. Latest wins: a second review of
// the same listing overwrites status and feedback.
type ReviewRequest struct {
	Status   Status `json:"status" binding:"required,oneof=approved denied"`
	Feedback string `json:"feedback" binding:"omitempty,max=1000"`
}

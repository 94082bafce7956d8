package class

import (
	"time"

	"github.com/google/uuid"
)

// A factory to build a Class from the incoming DTO. Status is always forced
// to pending at creation; only an admin review moves it on.
func NewFromCreateRequest(req CreateRequest) Class {
	now := time.Now().UTC()

	return Class{
		ID:              uuid.NewString(),
		InstructorEmail: req.InstructorEmail,
		Title:           req.Title,
		Description:     req.Description,
		PriceMinor:      req.PriceMinor,
		Status:          StatusPending,
		EnrollmentCount: 0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

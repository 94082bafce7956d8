package cart

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Item struct {
	ID         string    `json:"id"`
	OwnerEmail string    `json:"ownerEmail"`
	ClassID    string    `json:"classId"`
	CreatedAt  time.Time `json:"createdAt"`
}

var (
	ErrNotFound  = errors.New("cart item not found")
	ErrNotOwner  = errors.New("cart item belongs to another user")
)

type AddItemRequest struct {
	OwnerEmail string `json:"-"`
	ClassID    string `json:"classId" binding:"required,uuid"`
}

func NewFromAddRequest(req AddItemRequest) Item {
	return Item{
		ID:         uuid.NewString(),
		OwnerEmail: req.OwnerEmail,
		ClassID:    req.ClassID,
		CreatedAt:  time.Now().UTC(),
	}
}

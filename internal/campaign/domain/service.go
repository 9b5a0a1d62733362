package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Response, error)
	Publish(ctx context.Context, id string) (*Response, error)
	Close(ctx context.Context, id string) (*Response, error)
}

type CreateRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	GoalAmount  int64      `json:"goal_amount"`
	Currency    string     `json:"currency"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
}

type UpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	GoalAmount  *int64  `json:"goal_amount"`
}

type ListRequest struct {
	Status      string
	OrganizerID string
}

type Response struct {
	ID          string     `json:"id"`
	OrganizerID string     `json:"organizer_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	GoalAmount  int64      `json:"goal_amount"`
	Raised      int64      `json:"raised"`
	Currency    string     `json:"currency"`
	Status      Status     `json:"status"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

var (
	ErrInvalidTitle      = errors.New("invalid_title")
	ErrInvalidGoal       = errors.New("invalid_goal")
	ErrInvalidCurrency   = errors.New("invalid_currency")
	ErrInvalidID         = errors.New("invalid_id")
	ErrInvalidSchedule   = errors.New("invalid_schedule")
	ErrNotFound          = errors.New("not_found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid_transition")
	ErrCampaignClosed    = errors.New("campaign_closed")
)

package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, donation *Donation) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Donation, error)
	FindByProviderIntent(ctx context.Context, db *gorm.DB, provider string, intentID string) (*Donation, error)
	ListByCampaign(ctx context.Context, db *gorm.DB, campaignID snowflake.ID) ([]Donation, error)
	UpdateFields(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
}

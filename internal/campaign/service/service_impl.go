package service

import (
	"context"
	"strings"
	"time"

	auditdomain "github.com/classfund/classfund/internal/audit/domain"
	authdomain "github.com/classfund/classfund/internal/auth/domain"
	"github.com/classfund/classfund/internal/campaign/domain"
	ledgerdomain "github.com/classfund/classfund/internal/ledger/domain"
	"github.com/classfund/classfund/internal/usercontext"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxTitleLength = 200

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	LedgerSvc ledgerdomain.Service
	AuditSvc  auditdomain.Service `optional:"true"`
}

type service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	ledgerSvc ledgerdomain.Service
	auditSvc  auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:        p.DB,
		log:       p.Log,
		genID:     p.GenID,
		repo:      p.Repo,
		ledgerSvc: p.LedgerSvc,
		auditSvc:  p.AuditSvc,
	}
}

func (s *service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	user, ok := usercontext.UserFromContext(ctx)
	if !ok {
		return nil, domain.ErrForbidden
	}
	if user.Role != authdomain.RoleOrganizer && user.Role != authdomain.RoleAdmin {
		return nil, domain.ErrForbidden
	}

	title := strings.TrimSpace(req.Title)
	if title == "" || len(title) > maxTitleLength {
		return nil, domain.ErrInvalidTitle
	}
	if req.GoalAmount <= 0 {
		return nil, domain.ErrInvalidGoal
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}
	if len(currency) != 3 {
		return nil, domain.ErrInvalidCurrency
	}
	if req.StartsAt != nil && req.EndsAt != nil && !req.EndsAt.After(*req.StartsAt) {
		return nil, domain.ErrInvalidSchedule
	}

	campaign := &domain.Campaign{
		ID:          s.genID.Generate(),
		OrganizerID: user.ID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		GoalAmount:  req.GoalAmount,
		Currency:    currency,
		Status:      domain.StatusDraft,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
	}

	if err := s.repo.Create(ctx, s.db, campaign); err != nil {
		s.log.Error("failed to create campaign", zap.Error(err))
		return nil, err
	}

	s.audit(ctx, "campaign.created", campaign.ID, map[string]any{
		"title":       campaign.Title,
		"goal_amount": campaign.GoalAmount,
		"currency":    campaign.Currency,
	})

	return s.toResponse(ctx, campaign), nil
}

func (s *service) Get(ctx context.Context, id string) (*domain.Response, error) {
	campaignID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	campaign, err := s.repo.FindByID(ctx, s.db, campaignID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(ctx, campaign), nil
}

func (s *service) List(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	filter := domain.ListFilter{}
	if status := strings.TrimSpace(req.Status); status != "" {
		filter.Status = domain.Status(strings.ToLower(status))
	}
	if raw := strings.TrimSpace(req.OrganizerID); raw != "" {
		organizerID, err := parseID(raw)
		if err != nil {
			return nil, err
		}
		filter.OrganizerID = organizerID
	}

	campaigns, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	responses := make([]domain.Response, 0, len(campaigns))
	for i := range campaigns {
		responses = append(responses, *s.toResponse(ctx, &campaigns[i]))
	}
	return responses, nil
}

func (s *service) Update(ctx context.Context, id string, req domain.UpdateRequest) (*domain.Response, error) {
	campaign, err := s.ownedCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status == domain.StatusClosed {
		return nil, domain.ErrCampaignClosed
	}

	fields := map[string]any{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" || len(title) > maxTitleLength {
			return nil, domain.ErrInvalidTitle
		}
		fields["title"] = title
	}
	if req.Description != nil {
		fields["description"] = strings.TrimSpace(*req.Description)
	}
	if req.GoalAmount != nil {
		if *req.GoalAmount <= 0 {
			return nil, domain.ErrInvalidGoal
		}
		fields["goal_amount"] = *req.GoalAmount
	}
	if len(fields) == 0 {
		return s.toResponse(ctx, campaign), nil
	}
	fields["updated_at"] = time.Now().UTC()

	if err := s.repo.UpdateFields(ctx, s.db, campaign.ID, fields); err != nil {
		s.log.Error("failed to update campaign", zap.Error(err), zap.String("campaign_id", campaign.ID.String()))
		return nil, err
	}

	s.audit(ctx, "campaign.updated", campaign.ID, map[string]any{"fields": fieldNames(fields)})

	updated, err := s.repo.FindByID(ctx, s.db, campaign.ID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(ctx, updated), nil
}

func (s *service) Publish(ctx context.Context, id string) (*domain.Response, error) {
	return s.transition(ctx, id, domain.StatusDraft, domain.StatusActive, "campaign.published")
}

func (s *service) Close(ctx context.Context, id string) (*domain.Response, error) {
	return s.transition(ctx, id, domain.StatusActive, domain.StatusClosed, "campaign.closed")
}

func (s *service) transition(ctx context.Context, id string, from, to domain.Status, action string) (*domain.Response, error) {
	campaign, err := s.ownedCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status != from {
		return nil, domain.ErrInvalidTransition
	}

	fields := map[string]any{
		"status":     string(to),
		"updated_at": time.Now().UTC(),
	}
	if err := s.repo.UpdateFields(ctx, s.db, campaign.ID, fields); err != nil {
		s.log.Error("failed to transition campaign", zap.Error(err), zap.String("campaign_id", campaign.ID.String()))
		return nil, err
	}
	campaign.Status = to

	s.audit(ctx, action, campaign.ID, map[string]any{
		"from": string(from),
		"to":   string(to),
	})

	return s.toResponse(ctx, campaign), nil
}

// ownedCampaign loads a campaign and enforces owner-or-admin access.
func (s *service) ownedCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	user, ok := usercontext.UserFromContext(ctx)
	if !ok {
		return nil, domain.ErrForbidden
	}
	campaignID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	campaign, err := s.repo.FindByID(ctx, s.db, campaignID)
	if err != nil {
		return nil, err
	}
	if user.Role != authdomain.RoleAdmin && campaign.OrganizerID != user.ID {
		return nil, domain.ErrForbidden
	}
	return campaign, nil
}

func (s *service) toResponse(ctx context.Context, campaign *domain.Campaign) *domain.Response {
	raised, err := s.ledgerSvc.CampaignRaised(ctx, campaign.ID)
	if err != nil {
		s.log.Warn("failed to compute raised amount", zap.Error(err), zap.String("campaign_id", campaign.ID.String()))
		raised = 0
	}
	return &domain.Response{
		ID:          campaign.ID.String(),
		OrganizerID: campaign.OrganizerID.String(),
		Title:       campaign.Title,
		Description: campaign.Description,
		GoalAmount:  campaign.GoalAmount,
		Raised:      raised,
		Currency:    campaign.Currency,
		Status:      campaign.Status,
		StartsAt:    campaign.StartsAt,
		EndsAt:      campaign.EndsAt,
		CreatedAt:   campaign.CreatedAt,
		UpdatedAt:   campaign.UpdatedAt,
	}
}

func (s *service) audit(ctx context.Context, action string, campaignID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := campaignID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "campaign", &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.Error(err), zap.String("action", action))
	}
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func fieldNames(fields map[string]any) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		if name == "updated_at" {
			continue
		}
		names = append(names, name)
	}
	return names
}

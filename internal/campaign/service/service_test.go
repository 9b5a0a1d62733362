package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/classfund/classfund/internal/auth/domain"
	campaigndomain "github.com/classfund/classfund/internal/campaign/domain"
	"github.com/classfund/classfund/internal/campaign/repository"
	campaignservice "github.com/classfund/classfund/internal/campaign/service"
	ledgerdomain "github.com/classfund/classfund/internal/ledger/domain"
	"github.com/classfund/classfund/internal/usercontext"
	"github.com/classfund/classfund/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubLedgerService struct {
	raised map[snowflake.ID]int64
}

func (s *stubLedgerService) CreateEntry(ctx context.Context, campaignID snowflake.ID, sourceType ledgerdomain.LedgerSourceType, sourceID string, currency string, occurredAt time.Time, lines []ledgerdomain.EntryLine) error {
	return nil
}

func (s *stubLedgerService) CampaignRaised(ctx context.Context, campaignID snowflake.ID) (int64, error) {
	return s.raised[campaignID], nil
}

func (s *stubLedgerService) Balances(ctx context.Context, campaignID snowflake.ID) ([]ledgerdomain.AccountBalance, error) {
	return nil, nil
}

func newTestService(t *testing.T) (campaigndomain.Service, *gorm.DB, *stubLedgerService) {
	t.Helper()

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&campaigndomain.Campaign{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(12)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	ledger := &stubLedgerService{raised: map[snowflake.ID]int64{}}

	svc := campaignservice.NewService(campaignservice.Params{
		DB:        conn,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      repository.Provide(),
		LedgerSvc: ledger,
	})
	return svc, conn, ledger
}

func organizerContext(id int64) context.Context {
	return usercontext.WithUser(context.Background(), &authdomain.User{
		ID:   snowflake.ID(id),
		Role: authdomain.RoleOrganizer,
	})
}

func adminContext(id int64) context.Context {
	return usercontext.WithUser(context.Background(), &authdomain.User{
		ID:   snowflake.ID(id),
		Role: authdomain.RoleAdmin,
	})
}

func TestCreateRequiresOrganizerRole(t *testing.T) {
	svc, _, _ := newTestService(t)

	donor := usercontext.WithUser(context.Background(), &authdomain.User{
		ID:   snowflake.ID(99),
		Role: authdomain.RoleDonor,
	})
	_, err := svc.Create(donor, campaigndomain.CreateRequest{Title: "Band Trip", GoalAmount: 50000})
	if !errors.Is(err, campaigndomain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	_, err = svc.Create(context.Background(), campaigndomain.CreateRequest{Title: "Band Trip", GoalAmount: 50000})
	if !errors.Is(err, campaigndomain.ErrForbidden) {
		t.Fatalf("expected forbidden for anonymous, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := organizerContext(1)

	if _, err := svc.Create(ctx, campaigndomain.CreateRequest{Title: "  ", GoalAmount: 100}); !errors.Is(err, campaigndomain.ErrInvalidTitle) {
		t.Fatalf("expected invalid title, got %v", err)
	}
	if _, err := svc.Create(ctx, campaigndomain.CreateRequest{Title: "Trip", GoalAmount: 0}); !errors.Is(err, campaigndomain.ErrInvalidGoal) {
		t.Fatalf("expected invalid goal, got %v", err)
	}

	starts := time.Now()
	ends := starts.Add(-time.Hour)
	if _, err := svc.Create(ctx, campaigndomain.CreateRequest{Title: "Trip", GoalAmount: 100, StartsAt: &starts, EndsAt: &ends}); !errors.Is(err, campaigndomain.ErrInvalidSchedule) {
		t.Fatalf("expected invalid schedule, got %v", err)
	}
}

func TestCreateAndGetReportsRaised(t *testing.T) {
	svc, _, ledger := newTestService(t)
	ctx := organizerContext(1)

	created, err := svc.Create(ctx, campaigndomain.CreateRequest{
		Title:      "  Science Fair  ",
		GoalAmount: 250000,
		Currency:   "USD",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Title != "Science Fair" {
		t.Fatalf("expected trimmed title, got %q", created.Title)
	}
	if created.Currency != "usd" {
		t.Fatalf("expected lowercase currency, got %q", created.Currency)
	}
	if created.Status != campaigndomain.StatusDraft {
		t.Fatalf("expected draft status, got %q", created.Status)
	}

	id, err := snowflake.ParseString(created.ID)
	if err != nil {
		t.Fatalf("parse id: %v", err)
	}
	ledger.raised[id] = 7500

	got, err := svc.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Raised != 7500 {
		t.Fatalf("expected raised 7500, got %d", got.Raised)
	}
}

func TestUpdateOwnerOnly(t *testing.T) {
	svc, _, _ := newTestService(t)
	owner := organizerContext(1)

	created, err := svc.Create(owner, campaigndomain.CreateRequest{Title: "Library Fund", GoalAmount: 10000})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	title := "New Library Fund"
	if _, err := svc.Update(organizerContext(2), created.ID, campaigndomain.UpdateRequest{Title: &title}); !errors.Is(err, campaigndomain.ErrForbidden) {
		t.Fatalf("expected forbidden for non-owner, got %v", err)
	}

	updated, err := svc.Update(adminContext(3), created.ID, campaigndomain.UpdateRequest{Title: &title})
	if err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if updated.Title != title {
		t.Fatalf("expected title %q, got %q", title, updated.Title)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := organizerContext(1)

	created, err := svc.Create(ctx, campaigndomain.CreateRequest{Title: "Field Trip", GoalAmount: 40000})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Close(ctx, created.ID); !errors.Is(err, campaigndomain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition closing draft, got %v", err)
	}

	published, err := svc.Publish(ctx, created.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if published.Status != campaigndomain.StatusActive {
		t.Fatalf("expected active, got %q", published.Status)
	}

	if _, err := svc.Publish(ctx, created.ID); !errors.Is(err, campaigndomain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition republishing, got %v", err)
	}

	closed, err := svc.Close(ctx, created.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != campaigndomain.StatusClosed {
		t.Fatalf("expected closed, got %q", closed.Status)
	}

	goal := int64(99999)
	if _, err := svc.Update(ctx, created.ID, campaigndomain.UpdateRequest{GoalAmount: &goal}); !errors.Is(err, campaigndomain.ErrCampaignClosed) {
		t.Fatalf("expected campaign closed, got %v", err)
	}
}

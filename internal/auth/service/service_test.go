package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/classfund/classfund/internal/auth/domain"
	"github.com/classfund/classfund/internal/auth/repository"
	"github.com/classfund/classfund/pkg/db"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) authdomain.Service {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&authdomain.User{}, &authdomain.Session{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	repo, sessionRepo := repository.New(dbConn)
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	return New(zap.NewNop(), repo, sessionRepo, node)
}

func TestRegisterDefaultsToDonorRole(t *testing.T) {
	svc := newTestService(t)

	user, err := svc.Register(context.Background(), authdomain.CreateUserRequest{
		Email:    "alice@example.com",
		Password: "strong-password",
	})
	if err != nil {
		t.Fatalf("failed to register user: %v", err)
	}
	if user.Role != authdomain.RoleDonor {
		t.Fatalf("expected donor role, got %s", user.Role)
	}
	if user.DisplayName != "alice" {
		t.Fatalf("expected display name alice, got %s", user.DisplayName)
	}
}

func TestRegisterRejectsAdminRole(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Register(context.Background(), authdomain.CreateUserRequest{
		Email:    "mallory@example.com",
		Password: "strong-password",
		Role:     "admin",
	})
	if err != authdomain.ErrInvalidRole {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.Register(context.Background(), authdomain.CreateUserRequest{
		Email:    "bob@example.com",
		Password: "strong-password",
	}); err != nil {
		t.Fatalf("failed to register user: %v", err)
	}

	_, err := svc.Register(context.Background(), authdomain.CreateUserRequest{
		Email:    "Bob@Example.com",
		Password: "strong-password",
	})
	if err != authdomain.ErrUserExists {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.Register(context.Background(), authdomain.CreateUserRequest{
		Email:    "alice@example.com",
		Password: "correct-password",
	}); err != nil {
		t.Fatalf("failed to register user: %v", err)
	}

	_, err := svc.Login(context.Background(), authdomain.LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong-password",
	})
	if err != authdomain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, authdomain.CreateUserRequest{
		Email:    "carol@example.com",
		Password: "strong-password",
		Role:     "organizer",
	}); err != nil {
		t.Fatalf("failed to register user: %v", err)
	}

	result, err := svc.Login(ctx, authdomain.LoginRequest{
		Email:    "carol@example.com",
		Password: "strong-password",
	})
	if err != nil {
		t.Fatalf("failed to login: %v", err)
	}
	if result.RawToken == "" {
		t.Fatal("expected session token")
	}

	session, err := svc.Authenticate(ctx, result.RawToken)
	if err != nil {
		t.Fatalf("failed to authenticate: %v", err)
	}
	if session.ID != result.SessionID {
		t.Fatalf("expected session %s, got %s", result.SessionID, session.ID)
	}

	if err := svc.Logout(ctx, result.RawToken); err != nil {
		t.Fatalf("failed to logout: %v", err)
	}

	if _, err := svc.Authenticate(ctx, result.RawToken); err != authdomain.ErrSessionRevoked {
		t.Fatalf("expected ErrSessionRevoked, got %v", err)
	}
}

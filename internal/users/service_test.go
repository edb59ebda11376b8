package users

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/quotia/backend/internal/auth"
	"gorm.io/gorm"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unexpected pool error: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("unexpected migrate error: %v", err)
	}
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Database:   openTestDatabase(t),
		Hasher:     auth.NewPasswordHasher(),
		IDProvider: NewUUIDProvider(),
		Clock:      func() time.Time { return time.Unix(1700000000, 0) },
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return service
}

func TestRegisterAndAuthenticate(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, RegisterInput{
		Email:    "  Maria@Example.COM ",
		Password: "s3cret-pass",
		Name:     "María",
		LastName: "García",
	})
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if user.ID == "" {
		t.Fatalf("expected generated user id")
	}
	if user.Email != "maria@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.PasswordHash != "" {
		t.Fatalf("password hash must not be exposed")
	}

	authenticated, err := service.Authenticate(ctx, "maria@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("unexpected authenticate error: %v", err)
	}
	if authenticated.ID != user.ID {
		t.Fatalf("expected same account, got %q and %q", authenticated.ID, user.ID)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	input := RegisterInput{Email: "dup@example.com", Password: "s3cret-pass"}
	if _, err := service.Register(ctx, input); err != nil {
		t.Fatalf("unexpected first register error: %v", err)
	}
	_, err := service.Register(ctx, input)
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, RegisterInput{Email: "no-at-sign", Password: "s3cret-pass"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for email, got %v", err)
	}
	if _, err := service.Register(ctx, RegisterInput{Email: "ok@example.com", Password: "short"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for password, got %v", err)
	}
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Register(ctx, RegisterInput{Email: "ana@example.com", Password: "s3cret-pass"}); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	_, err := service.Authenticate(ctx, "ana@example.com", "wrong-pass")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	_, err = service.Authenticate(ctx, "ghost@example.com", "whatever")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown account, got %v", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	service := newTestService(t)
	_, err := service.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUpdateProfileAndPassword(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, RegisterInput{Email: "luis@example.com", Password: "s3cret-pass", Name: "Luis"})
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	newName := "Luis Alberto"
	newPassword := "even-m0re-secret"
	updated, err := service.Update(ctx, user.ID, UpdateInput{Name: &newName, Password: &newPassword})
	if err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if updated.Name != "Luis Alberto" {
		t.Fatalf("expected updated name, got %q", updated.Name)
	}

	if _, err := service.Authenticate(ctx, "luis@example.com", "even-m0re-secret"); err != nil {
		t.Fatalf("expected new password to authenticate: %v", err)
	}
	if _, err := service.Authenticate(ctx, "luis@example.com", "s3cret-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password to be rejected, got %v", err)
	}
}

package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quotia/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrEmailTaken indicates an account already exists for the email address.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrUserNotFound indicates no account exists for the identifier.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrInvalidCredentials indicates the email/password pair did not authenticate.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrInvalidInput indicates a malformed registration or update payload.
	ErrInvalidInput = errors.New("users: invalid input")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingHasher     = errors.New("password hasher is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew   = "users.service.new"
	opRegister     = "users.register"
	opAuthenticate = "users.authenticate"
	opGetByID      = "users.get_by_id"
	opUpdate       = "users.update"
)

// ServiceError carries a dotted operation code alongside the underlying cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// IDProvider issues identifiers for new accounts.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies required for account management.
type ServiceConfig struct {
	Database   *gorm.DB
	Hasher     *auth.PasswordHasher
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service manages account registration, authentication and profile updates.
type Service struct {
	db         *gorm.DB
	hasher     *auth.PasswordHasher
	idProvider IDProvider
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Hasher == nil {
		return nil, newServiceError(opServiceNew, "missing_hasher", errMissingHasher)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		hasher:     cfg.Hasher,
		idProvider: cfg.IDProvider,
		clock:      clock,
		logger:     logger,
	}, nil
}

// RegisterInput carries the fields accepted at account creation.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	LastName string
}

// Register creates a new account with a hashed password.
func (s *Service) Register(ctx context.Context, input RegisterInput) (User, error) {
	email := normalizeEmail(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: email", ErrInvalidInput)
	}
	if len(input.Password) < 8 {
		return User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}

	var existing User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&existing).Error
	if err == nil {
		return User{}, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logError(opRegister, "lookup_failed", err, zap.String("email", email))
		return User{}, newServiceError(opRegister, "lookup_failed", err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		s.logError(opRegister, "hash_failed", err)
		return User{}, newServiceError(opRegister, "hash_failed", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opRegister, "id_generation_failed", err)
		return User{}, newServiceError(opRegister, "id_generation_failed", err)
	}

	user := User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(input.Name),
		LastName:     strings.TrimSpace(input.LastName),
		CreatedAt:    s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return User{}, ErrEmailTaken
		}
		s.logError(opRegister, "insert_failed", err, zap.String("email", email))
		return User{}, newServiceError(opRegister, "insert_failed", err)
	}

	return sanitize(user), nil
}

// Authenticate verifies the email/password pair and returns the account on success.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = normalizeEmail(email)

	var user User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		s.logError(opAuthenticate, "lookup_failed", err, zap.String("email", email))
		return User{}, newServiceError(opAuthenticate, "lookup_failed", err)
	}

	if err := s.hasher.Verify(password, user.PasswordHash); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return User{}, ErrInvalidCredentials
		}
		s.logError(opAuthenticate, "verify_failed", err)
		return User{}, newServiceError(opAuthenticate, "verify_failed", err)
	}

	return sanitize(user), nil
}

// GetByID fetches a single account by identifier.
func (s *Service) GetByID(ctx context.Context, id string) (User, error) {
	if strings.TrimSpace(id) == "" {
		return User{}, fmt.Errorf("%w: id", ErrInvalidInput)
	}

	var user User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		s.logError(opGetByID, "query_failed", err, zap.String("user_id", id))
		return User{}, newServiceError(opGetByID, "query_failed", err)
	}

	return sanitize(user), nil
}

// UpdateInput carries optional profile fields; nil pointers leave the stored value untouched.
type UpdateInput struct {
	Name     *string
	LastName *string
	Password *string
}

// Update applies profile changes to an existing account.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		s.logError(opUpdate, "lookup_failed", err, zap.String("user_id", id))
		return User{}, newServiceError(opUpdate, "lookup_failed", err)
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*input.LastName)
	}
	if input.Password != nil {
		if len(*input.Password) < 8 {
			return User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
		}
		hash, err := s.hasher.Hash(*input.Password)
		if err != nil {
			s.logError(opUpdate, "hash_failed", err)
			return User{}, newServiceError(opUpdate, "hash_failed", err)
		}
		updates["password_hash"] = hash
	}
	if len(updates) == 0 {
		return sanitize(user), nil
	}
	updates["updated_at"] = s.clock().UTC()

	if err := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		s.logError(opUpdate, "update_failed", err, zap.String("user_id", id))
		return User{}, newServiceError(opUpdate, "update_failed", err)
	}

	return s.GetByID(ctx, id)
}

func sanitize(user User) User {
	user.PasswordHash = ""
	return user
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("users service error", attrs...)
}

package devicetokens

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidToken indicates an empty or oversized endpoint token.
	ErrInvalidToken = errors.New("devicetokens: invalid token")
	// ErrInvalidUserID indicates an empty owner identifier.
	ErrInvalidUserID = errors.New("devicetokens: invalid user id")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

const maxTokenLength = 512

const (
	opServiceNew = "devicetokens.service.new"
	opRegister   = "devicetokens.register"
	opDelete     = "devicetokens.delete"
	opList       = "devicetokens.list_by_user"
)

// ServiceConfig describes the dependencies required by the token registry.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service persists endpoint tokens and resolves them per owner for dispatch.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the registry service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("%s.missing_database: %w", opServiceNew, errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Register stores or refreshes a device token. The upsert key is the token
// itself, so a token re-registered under another account moves to that account.
func (s *Service) Register(ctx context.Context, userID, token string, platform Platform) error {
	userID = strings.TrimSpace(userID)
	token = strings.TrimSpace(token)
	if userID == "" {
		return ErrInvalidUserID
	}
	if token == "" || len(token) > maxTokenLength {
		return ErrInvalidToken
	}

	record := DeviceToken{
		Token:     token,
		UserID:    userID,
		Platform:  platform,
		UpdatedAt: s.clock().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "platform", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		s.logError(opRegister, "upsert_failed", err, zap.String("user_id", userID))
		return fmt.Errorf("%s.upsert_failed: %w", opRegister, err)
	}

	s.logger.Debug("device token registered",
		zap.String("user_id", userID),
		zap.String("token_prefix", tokenPrefix(token)))
	return nil
}

// Delete removes a token from the registry. Deleting an absent token is a
// no-op and reports false without error, so concurrent cleanup attempts for
// the same invalid token cannot fail each other.
func (s *Service) Delete(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, ErrInvalidToken
	}

	result := s.db.WithContext(ctx).Where("token = ?", token).Delete(&DeviceToken{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error, zap.String("token_prefix", tokenPrefix(token)))
		return false, fmt.Errorf("%s.delete_failed: %w", opDelete, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListByOwner returns all endpoint tokens registered for the owner, newest first.
func (s *Service) ListByOwner(ctx context.Context, userID string) ([]string, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}

	var tokens []string
	err := s.db.WithContext(ctx).Model(&DeviceToken{}).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Pluck("token", &tokens).Error
	if err != nil {
		s.logError(opList, "query_failed", err, zap.String("user_id", userID))
		return nil, fmt.Errorf("%s.query_failed: %w", opList, err)
	}
	return tokens, nil
}

func tokenPrefix(token string) string {
	if len(token) <= 10 {
		return token
	}
	return token[:10]
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
	s.logger.Error("device token registry error", attrs...)
}

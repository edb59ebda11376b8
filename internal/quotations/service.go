package quotations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrQuotationNotFound indicates no quotation exists for the identifier.
	ErrQuotationNotFound = errors.New("quotations: quotation not found")
	// ErrNotAuthorized indicates the requester does not own the quotation.
	ErrNotAuthorized = errors.New("quotations: requester does not own quotation")
	// ErrInvalidInput indicates a malformed creation request.
	ErrInvalidInput = errors.New("quotations: invalid input")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingGenerator  = errors.New("report generator is required")
	errMissingRenderer   = errors.New("document renderer is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew     = "quotations.service.new"
	opCreate         = "quotations.create"
	opGetByID        = "quotations.get_by_id"
	opGetByName      = "quotations.get_by_project_name"
	opListByOwner    = "quotations.list_by_owner"
	opRenderDocument = "quotations.render_document"

	notificationTitle = "Cotización Lista ✅"
	notificationKind  = "QUOTATION_READY"

	notifyTimeout = 30 * time.Second
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

// IDProvider issues identifiers for new quotations.
type IDProvider interface {
	NewID() (string, error)
}

// ReportGenerator is the text-generation port; any backend producing a
// markdown report for the input is swappable behind it.
type ReportGenerator interface {
	GenerateReport(ctx context.Context, input GenerationInput) (string, error)
}

// DocumentRenderer turns a quotation's markdown body into document bytes.
type DocumentRenderer interface {
	Render(title, bodyMarkdown string, generatedOn time.Time) ([]byte, error)
}

// Notifier is the push-dispatch port; delivery is best-effort and its outcome
// never affects the calling operation.
type Notifier interface {
	Notify(ctx context.Context, ownerID, title, body string, data map[string]string) bool
}

// ServiceConfig describes the dependencies required by the quotation service.
type ServiceConfig struct {
	Database   *gorm.DB
	Generator  ReportGenerator
	Renderer   DocumentRenderer
	Notifier   Notifier
	IDProvider IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger

	// DocumentMIMEType names the content type of rendered artifacts.
	DocumentMIMEType string
}

// Service manages quotation creation, retrieval and document rendering.
type Service struct {
	db         *gorm.DB
	generator  ReportGenerator
	renderer   DocumentRenderer
	notifier   Notifier
	idProvider IDProvider
	clock      func() time.Time
	logger     *zap.Logger
	mimeType   string
}

// NewService constructs the quotation service. The notifier is optional;
// without one, creation simply skips dispatch.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Generator == nil {
		return nil, newServiceError(opServiceNew, "missing_generator", errMissingGenerator)
	}
	if cfg.Renderer == nil {
		return nil, newServiceError(opServiceNew, "missing_renderer", errMissingRenderer)
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
		generator:  cfg.Generator,
		renderer:   cfg.Renderer,
		notifier:   cfg.Notifier,
		idProvider: cfg.IDProvider,
		clock:      clock,
		logger:     logger,
		mimeType:   cfg.DocumentMIMEType,
	}, nil
}

// CreateInput carries the fields accepted when requesting a new quotation.
type CreateInput struct {
	UserID      string
	Name        string
	Description string
	Capital     float64
	SelfMade    bool
	Mockup      *MockupImage
}

// Create generates the report text, persists the quotation and dispatches the
// ready notification. Dispatch is fire-and-forget: its outcome never affects
// the returned result.
func (s *Service) Create(ctx context.Context, input CreateInput) (Quotation, error) {
	userID := strings.TrimSpace(input.UserID)
	name := strings.TrimSpace(input.Name)
	if userID == "" {
		return Quotation{}, fmt.Errorf("%w: user id", ErrInvalidInput)
	}
	if name == "" {
		return Quotation{}, fmt.Errorf("%w: project name", ErrInvalidInput)
	}
	if strings.TrimSpace(input.Description) == "" {
		return Quotation{}, fmt.Errorf("%w: description", ErrInvalidInput)
	}

	text, err := s.generator.GenerateReport(ctx, GenerationInput{
		ProjectName: name,
		Description: input.Description,
		Capital:     input.Capital,
		SelfMade:    input.SelfMade,
		Mockup:      input.Mockup,
	})
	if err != nil {
		s.logError(opCreate, "generation_failed", err, zap.String("project", name))
		return Quotation{}, newServiceError(opCreate, "generation_failed", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err)
		return Quotation{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	quotation := Quotation{
		ID:            id,
		UserID:        userID,
		Name:          name,
		QuotationText: text,
		CreatedAt:     s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&quotation).Error; err != nil {
		s.logError(opCreate, "insert_failed", err, zap.String("project", name))
		return Quotation{}, newServiceError(opCreate, "insert_failed", err)
	}

	s.dispatchReadyNotification(quotation)

	return quotation, nil
}

// dispatchReadyNotification fires the QUOTATION_READY push asynchronously.
// The creating request has already succeeded by the time this runs.
func (s *Service) dispatchReadyNotification(quotation Quotation) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		body := fmt.Sprintf("Tu cotización para el proyecto \"%s\" está lista. ¡Revísala en la app!", quotation.Name)
		delivered := s.notifier.Notify(ctx, quotation.UserID, notificationTitle, body, map[string]string{
			"quotationId":    quotation.ID,
			"quotationTitle": quotation.Name,
			"ownerId":        quotation.UserID,
			"kind":           notificationKind,
		})
		if !delivered {
			s.logger.Warn("quotation ready notification not fully delivered",
				zap.String("quotation_id", quotation.ID),
				zap.String("user_id", quotation.UserID))
		}
	}()
}

// GetByID fetches one quotation including its full report text.
func (s *Service) GetByID(ctx context.Context, id string) (Quotation, error) {
	if strings.TrimSpace(id) == "" {
		return Quotation{}, fmt.Errorf("%w: id", ErrInvalidInput)
	}

	var quotation Quotation
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&quotation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Quotation{}, ErrQuotationNotFound
	}
	if err != nil {
		s.logError(opGetByID, "query_failed", err, zap.String("quotation_id", id))
		return Quotation{}, newServiceError(opGetByID, "query_failed", err)
	}
	return quotation, nil
}

// GetByProjectName fetches the most recent quotation for a project name.
func (s *Service) GetByProjectName(ctx context.Context, name string) (Quotation, error) {
	if strings.TrimSpace(name) == "" {
		return Quotation{}, fmt.Errorf("%w: project name", ErrInvalidInput)
	}

	var quotation Quotation
	err := s.db.WithContext(ctx).
		Where("name = ?", strings.TrimSpace(name)).
		Order("created_at DESC").
		First(&quotation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Quotation{}, ErrQuotationNotFound
	}
	if err != nil {
		s.logError(opGetByName, "query_failed", err, zap.String("project", name))
		return Quotation{}, newServiceError(opGetByName, "query_failed", err)
	}
	return quotation, nil
}

// ListByOwner returns the owner's quotations newest first. The report text is
// omitted from list results.
func (s *Service) ListByOwner(ctx context.Context, userID string) ([]Quotation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id", ErrInvalidInput)
	}

	var quotations []Quotation
	err := s.db.WithContext(ctx).
		Select("id", "user_id", "name", "created_at").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&quotations).Error
	if err != nil {
		s.logError(opListByOwner, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opListByOwner, "query_failed", err)
	}
	return quotations, nil
}

// RenderDocument renders the downloadable artifact for a quotation after
// checking that the requester owns it. The quotation's creation time is used
// as the generation date so repeated downloads produce identical bytes.
func (s *Service) RenderDocument(ctx context.Context, quotationID, requestingUserID string) (Document, error) {
	quotation, err := s.GetByID(ctx, quotationID)
	if err != nil {
		return Document{}, err
	}
	if quotation.UserID != requestingUserID {
		s.logger.Warn("quotation download denied",
			zap.String("operation", opRenderDocument),
			zap.String("quotation_id", quotationID),
			zap.String("requesting_user_id", requestingUserID))
		return Document{}, ErrNotAuthorized
	}

	data, err := s.renderer.Render(quotation.Name, quotation.QuotationText, quotation.CreatedAt)
	if err != nil {
		s.logError(opRenderDocument, "render_failed", err, zap.String("quotation_id", quotationID))
		return Document{}, newServiceError(opRenderDocument, "render_failed", err)
	}

	return Document{
		Bytes:    data,
		Filename: fmt.Sprintf("quotation_%s.docx", quotation.ID),
		MIMEType: s.mimeType,
	}, nil
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
	s.logger.Error("quotations service error", attrs...)
}

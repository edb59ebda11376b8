package quotations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type stubGenerator struct {
	report string
	err    error
	inputs []GenerationInput
}

func (g *stubGenerator) GenerateReport(_ context.Context, input GenerationInput) (string, error) {
	g.inputs = append(g.inputs, input)
	if g.err != nil {
		return "", g.err
	}
	return g.report, nil
}

type stubRenderer struct {
	payload []byte
	err     error
	calls   []renderCall
}

type renderCall struct {
	title       string
	body        string
	generatedOn time.Time
}

func (r *stubRenderer) Render(title, body string, generatedOn time.Time) ([]byte, error) {
	r.calls = append(r.calls, renderCall{title: title, body: body, generatedOn: generatedOn})
	if r.err != nil {
		return nil, r.err
	}
	return r.payload, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	done  chan struct{}
	owner string
	title string
	body  string
	data  map[string]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{done: make(chan struct{})}
}

func (n *recordingNotifier) Notify(_ context.Context, ownerID, title, body string, data map[string]string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.owner = ownerID
	n.title = title
	n.body = body
	n.data = data
	close(n.done)
	return true
}

func (n *recordingNotifier) wait(t *testing.T) {
	t.Helper()
	select {
	case <-n.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("notification was never dispatched")
	}
}

type sequentialIDProvider struct {
	next int
}

func (p *sequentialIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("quotation-%d", p.next), nil
}

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("access connection pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Quotation{}); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T, cfg ServiceConfig) *Service {
	t.Helper()
	if cfg.Database == nil {
		cfg.Database = newTestDatabase(t)
	}
	if cfg.Generator == nil {
		cfg.Generator = &stubGenerator{report: "# Reporte"}
	}
	if cfg.Renderer == nil {
		cfg.Renderer = &stubRenderer{payload: []byte("PK\x03\x04")}
	}
	if cfg.IDProvider == nil {
		cfg.IDProvider = &sequentialIDProvider{}
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Date(2026, 3, 18, 9, 0, 0, 0, time.UTC) }
	}
	if cfg.DocumentMIMEType == "" {
		cfg.DocumentMIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	service, err := NewService(cfg)
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestCreatePersistsQuotationAndNotifies(t *testing.T) {
	notifier := newRecordingNotifier()
	generator := &stubGenerator{report: "# Reporte de cotización"}
	service := newTestService(t, ServiceConfig{Generator: generator, Notifier: notifier})

	quotation, err := service.Create(context.Background(), CreateInput{
		UserID:      "user-1",
		Name:        "Tienda en línea",
		Description: "E-commerce con pagos",
		Capital:     50000,
		SelfMade:    true,
	})
	if err != nil {
		t.Fatalf("create quotation: %v", err)
	}
	if quotation.ID == "" {
		t.Fatalf("expected an assigned identifier")
	}
	if quotation.QuotationText != "# Reporte de cotización" {
		t.Fatalf("unexpected stored text %q", quotation.QuotationText)
	}
	if len(generator.inputs) != 1 || generator.inputs[0].ProjectName != "Tienda en línea" {
		t.Fatalf("generator received unexpected input %+v", generator.inputs)
	}
	if !generator.inputs[0].SelfMade || generator.inputs[0].Capital != 50000 {
		t.Fatalf("generation input lost fields: %+v", generator.inputs[0])
	}

	notifier.wait(t)
	if notifier.owner != "user-1" {
		t.Fatalf("notification sent to %q, expected user-1", notifier.owner)
	}
	if notifier.title != "Cotización Lista ✅" {
		t.Fatalf("unexpected notification title %q", notifier.title)
	}
	expectedBody := "Tu cotización para el proyecto \"Tienda en línea\" está lista. ¡Revísala en la app!"
	if notifier.body != expectedBody {
		t.Fatalf("unexpected notification body %q", notifier.body)
	}
	if notifier.data["quotationId"] != quotation.ID {
		t.Fatalf("notification data missing quotation id: %+v", notifier.data)
	}
	if notifier.data["kind"] != "QUOTATION_READY" {
		t.Fatalf("notification data missing kind: %+v", notifier.data)
	}

	stored, err := service.GetByID(context.Background(), quotation.ID)
	if err != nil {
		t.Fatalf("fetch stored quotation: %v", err)
	}
	if stored.UserID != "user-1" || stored.Name != "Tienda en línea" {
		t.Fatalf("stored quotation mismatch: %+v", stored)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	service := newTestService(t, ServiceConfig{})

	cases := []CreateInput{
		{UserID: "", Name: "p", Description: "d"},
		{UserID: "u", Name: "  ", Description: "d"},
		{UserID: "u", Name: "p", Description: ""},
	}
	for index, input := range cases {
		if _, err := service.Create(context.Background(), input); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", index, err)
		}
	}
}

func TestCreatePropagatesGenerationFailure(t *testing.T) {
	generator := &stubGenerator{err: errors.New("model unavailable")}
	service := newTestService(t, ServiceConfig{Generator: generator})

	_, err := service.Create(context.Background(), CreateInput{
		UserID:      "user-1",
		Name:        "Proyecto",
		Description: "Descripción",
	})
	if err == nil {
		t.Fatalf("expected a generation failure")
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected a service error, got %T", err)
	}
	if serviceErr.Code() != "quotations.create.generation_failed" {
		t.Fatalf("unexpected error code %q", serviceErr.Code())
	}

	var count int64
	if err := service.db.Model(&Quotation{}).Count(&count).Error; err != nil {
		t.Fatalf("count quotations: %v", err)
	}
	if count != 0 {
		t.Fatalf("failed generation must not persist a quotation, found %d", count)
	}
}

func TestCreateWithoutNotifierSucceeds(t *testing.T) {
	service := newTestService(t, ServiceConfig{})
	if _, err := service.Create(context.Background(), CreateInput{
		UserID:      "user-1",
		Name:        "Proyecto",
		Description: "Descripción",
	}); err != nil {
		t.Fatalf("create without notifier: %v", err)
	}
}

func TestListByOwnerOmitsReportText(t *testing.T) {
	service := newTestService(t, ServiceConfig{})
	ctx := context.Background()

	base := time.Date(2026, 3, 18, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		created := base.Add(time.Duration(i) * time.Hour)
		record := Quotation{
			ID:            fmt.Sprintf("q-%d", i),
			UserID:        "user-1",
			Name:          fmt.Sprintf("Proyecto %d", i),
			QuotationText: "texto completo",
			CreatedAt:     created,
		}
		if err := service.db.Create(&record).Error; err != nil {
			t.Fatalf("seed quotation: %v", err)
		}
	}
	other := Quotation{ID: "q-x", UserID: "user-2", Name: "Ajeno", QuotationText: "otro", CreatedAt: base}
	if err := service.db.Create(&other).Error; err != nil {
		t.Fatalf("seed foreign quotation: %v", err)
	}

	listed, err := service.ListByOwner(ctx, "user-1")
	if err != nil {
		t.Fatalf("list quotations: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("expected 3 quotations, got %d", len(listed))
	}
	if listed[0].ID != "q-2" {
		t.Fatalf("expected newest first, got %q", listed[0].ID)
	}
	for _, quotation := range listed {
		if quotation.QuotationText != "" {
			t.Fatalf("list results must omit the report text, got %q", quotation.QuotationText)
		}
	}
}

func TestGetByProjectNameReturnsLatest(t *testing.T) {
	service := newTestService(t, ServiceConfig{})
	ctx := context.Background()

	base := time.Date(2026, 3, 18, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		record := Quotation{
			ID:            fmt.Sprintf("q-%d", i),
			UserID:        "user-1",
			Name:          "Proyecto",
			QuotationText: fmt.Sprintf("versión %d", i),
			CreatedAt:     base.Add(time.Duration(i) * time.Hour),
		}
		if err := service.db.Create(&record).Error; err != nil {
			t.Fatalf("seed quotation: %v", err)
		}
	}

	quotation, err := service.GetByProjectName(ctx, "Proyecto")
	if err != nil {
		t.Fatalf("get by project name: %v", err)
	}
	if quotation.ID != "q-1" {
		t.Fatalf("expected the most recent quotation, got %q", quotation.ID)
	}

	if _, err := service.GetByProjectName(ctx, "Inexistente"); !errors.Is(err, ErrQuotationNotFound) {
		t.Fatalf("expected ErrQuotationNotFound, got %v", err)
	}
}

func TestRenderDocumentChecksOwnership(t *testing.T) {
	renderer := &stubRenderer{payload: []byte("PK\x03\x04document")}
	service := newTestService(t, ServiceConfig{Renderer: renderer})
	ctx := context.Background()

	created := time.Date(2026, 3, 18, 9, 0, 0, 0, time.UTC)
	record := Quotation{ID: "q-1", UserID: "user-1", Name: "Proyecto", QuotationText: "# Reporte", CreatedAt: created}
	if err := service.db.Create(&record).Error; err != nil {
		t.Fatalf("seed quotation: %v", err)
	}

	if _, err := service.RenderDocument(ctx, "q-1", "user-2"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized for a foreign requester, got %v", err)
	}
	if len(renderer.calls) != 0 {
		t.Fatalf("renderer must not run for unauthorized requests")
	}

	document, err := service.RenderDocument(ctx, "q-1", "user-1")
	if err != nil {
		t.Fatalf("render document: %v", err)
	}
	if document.Filename != "quotation_q-1.docx" {
		t.Fatalf("unexpected filename %q", document.Filename)
	}
	if document.MIMEType == "" {
		t.Fatalf("expected a document MIME type")
	}
	if len(renderer.calls) != 1 {
		t.Fatalf("expected one render call, got %d", len(renderer.calls))
	}
	call := renderer.calls[0]
	if call.title != "Proyecto" || call.body != "# Reporte" {
		t.Fatalf("unexpected render call %+v", call)
	}
	if !call.generatedOn.Equal(created) {
		t.Fatalf("render must use the creation time, got %v", call.generatedOn)
	}

	if _, err := service.RenderDocument(ctx, "missing", "user-1"); !errors.Is(err, ErrQuotationNotFound) {
		t.Fatalf("expected ErrQuotationNotFound, got %v", err)
	}
}

// Package report converts a quotation's markdown body into a styled,
// downloadable word-processing document. The conversion is pure: the same
// title, body and generation date always produce the same bytes.
package report

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ErrGenerationFailed wraps any parse or serialization fault; rendering never
// partially succeeds.
var ErrGenerationFailed = errors.New("report: document generation failed")

// MIMEType is the content type of the rendered document.
const MIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Renderer renders markdown quotation reports to DOCX.
type Renderer struct {
	logger *zap.Logger
}

// NewRenderer constructs a Renderer. A nil logger disables diagnostics.
func NewRenderer(logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{logger: logger}
}

// Render produces the document bytes for a quotation report. Malformed
// markdown degrades to plain text rather than failing; an empty body yields a
// minimal error-notice document. The generation date is an explicit parameter
// so output stays reproducible.
func (r *Renderer) Render(title, bodyMarkdown string, generatedOn time.Time) ([]byte, error) {
	layout := buildLayout(bodyMarkdown, r.logger)

	data, err := emitDocument(title, generatedOn, layout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	r.logger.Debug("quotation document rendered",
		zap.String("title", title),
		zap.Int("blocks", len(layout.Blocks)),
		zap.Int("bytes", len(data)))
	return data, nil
}

// SuggestedFilename names the downloaded artifact after its quotation.
func SuggestedFilename(quotationID string) string {
	return fmt.Sprintf("quotation_%s.docx", quotationID)
}

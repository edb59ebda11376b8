package quotations

import "time"

// Quotation is one generated cost report. Records are immutable once created;
// the rendered document is never stored and is regenerated on each download.
type Quotation struct {
	ID            string    `gorm:"column:id;primaryKey;size:190;not null"`
	UserID        string    `gorm:"column:user_id;size:190;not null;index:idx_quotations_user_created,priority:1"`
	Name          string    `gorm:"column:name;size:320;not null"`
	QuotationText string    `gorm:"column:quotation_text;type:text;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime;index:idx_quotations_user_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Quotation) TableName() string {
	return "quotations"
}

// MockupImage is an optional UI mockup supplied at creation time and forwarded
// to the vision-capable generation backend.
type MockupImage struct {
	MIMEType string
	Data     []byte
}

// GenerationInput carries everything the report generator needs for one report.
type GenerationInput struct {
	ProjectName string
	Description string
	Capital     float64
	SelfMade    bool
	Mockup      *MockupImage
}

// Document is a rendered quotation artifact ready to stream back to a client.
type Document struct {
	Bytes    []byte
	Filename string
	MIMEType string
}

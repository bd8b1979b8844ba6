package entity

import (
	"time"

	"github.com/karelmartinek-a11y/kajovospend/constants"
)

// SourceFile is one ingested input file, identified by its content hash.
type SourceFile struct {
	ID           int64
	SHA256       string
	OriginalName string
	MimeType     string
	Pages        int
	CurrentPath  string
	Status       constants.FileStatus
	LastError    string
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

// PageAudit records which text source won a page and why.
type PageAudit struct {
	ID         int64
	DocumentID int64
	FileID     int64
	PageNo     int // 1-based

	ChosenMode    string // embedded / ocr
	ChosenScore   float64
	EmbeddedScore float64
	OCRScore      float64
	EmbeddedLen   int
	OCRLen        int
	OCRConf       float64
}

package constants

// FileStatus is the canonical status for rows in files.
type FileStatus string

// Stable values (store these exact strings in DB).
const (
	FileStatusNew        FileStatus = "NEW"
	FileStatusProcessed  FileStatus = "PROCESSED"
	FileStatusQuarantine FileStatus = "QUARANTINE"
	FileStatusDuplicate  FileStatus = "DUPLICATE"
	FileStatusError      FileStatus = "ERROR"
)

// JobStatus is the canonical status for rows in import_jobs.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusRunning    JobStatus = "RUNNING"
	JobStatusDone       JobStatus = "DONE"
	JobStatusError      JobStatus = "ERROR"
	JobStatusDuplicate  JobStatus = "DUPLICATE"
	JobStatusQuarantine JobStatus = "QUARANTINE"
)

// DocType distinguishes the decision policy applied to a document.
type DocType string

const (
	DocTypeInvoice DocType = "invoice"
	DocTypeReceipt DocType = "receipt"
)

// ExtractionMethod records which extractor produced a document.
type ExtractionMethod string

const (
	MethodOffline  ExtractionMethod = "offline"
	MethodFallback ExtractionMethod = "fallback"
	MethodManual   ExtractionMethod = "manual"
)

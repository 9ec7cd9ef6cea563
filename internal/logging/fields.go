package logging

// Standardized structured logging keys shared across cbx components.
const (
	// FieldComponent names the subsystem emitting the record.
	FieldComponent = "component"
	// FieldArchive carries the display name of the archive being processed.
	FieldArchive = "archive"
	// FieldStage names the pipeline stage (extract, convert, package).
	FieldStage = "stage"
	// FieldPage carries a page file name inside an archive.
	FieldPage = "page"
	// FieldEventType categorizes notable events for downstream filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step when an operation fails.
	FieldErrorHint = "error_hint"
	// FieldAlert flags warnings or anomalies that should stand out.
	FieldAlert = "alert"
)

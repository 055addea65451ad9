// Package ingest turns unstructured financial messages (bank SMS, bank
// emails, spreadsheet rows, statement lines) into structured, deduplicated
// transactions.
package ingest

import "time"

// Source identifies the channel a raw message arrived through.
type Source string

const (
	SourceSMS          Source = "SMS"
	SourceEmail        Source = "EMAIL"
	SourceFileRow      Source = "FILE_ROW"
	SourceStatementPDF Source = "STATEMENT_PDF"
)

// Valid reports whether s is one of the known sources.
func (s Source) Valid() bool {
	switch s {
	case SourceSMS, SourceEmail, SourceFileRow, SourceStatementPDF:
		return true
	}
	return false
}

// RawMessage is the pipeline's input unit. It exists only for the duration
// of one pipeline invocation and is never persisted by the core.
type RawMessage struct {
	Source     Source
	Sender     string // SMS sender id or email from-address, optional
	Subject    string // email subject, optional
	Body       string
	ReceivedAt time.Time // transport receive hint, zero if unknown
}

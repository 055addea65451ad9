package fileimport

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/oksbwn/finsight/internal/ingest"
)

// maxStatementText bounds how much extracted text one statement may produce.
const maxStatementText = 2 << 20

// Lines worth feeding to the pipeline carry both a date and an amount.
var (
	statementDatePattern = regexp.MustCompile(
		`\b(\d{1,2}[./-]\d{1,2}[./-]\d{2,4}|\d{4}-\d{2}-\d{2}|\d{1,2}\s+(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\.?\s*\d{0,4})\b`)
	statementAmountPattern = regexp.MustCompile(
		`(?:₹|Rs\.?|INR)\s*[\d,]+\.?\d*|\b\d{1,3}(?:,\d{2,3})*\.\d{2}\b`)
)

// ExtractStatementLines opens a statement PDF, pulls its plain text and
// returns one RawMessage per transaction-looking line. password may be empty
// for unprotected statements.
func ExtractStatementLines(data []byte, password string, receivedAt time.Time) ([]ingest.RawMessage, error) {
	text, err := statementText(data, password)
	if err != nil {
		return nil, err
	}
	return filterStatementLines(text, receivedAt), nil
}

// filterStatementLines keeps the lines that look like ledger entries and
// wraps each one as a statement-sourced raw message.
func filterStatementLines(text string, receivedAt time.Time) []ingest.RawMessage {
	var msgs []ingest.RawMessage
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !statementDatePattern.MatchString(line) || !statementAmountPattern.MatchString(line) {
			continue
		}
		msgs = append(msgs, ingest.RawMessage{
			Source:     ingest.SourceStatementPDF,
			Sender:     "statement",
			Body:       line,
			ReceivedAt: receivedAt,
		})
	}
	return msgs
}

// statementText extracts plain text from the PDF. The pdf library panics on
// some malformed files, so the recover turns those into errors.
func statementText(data []byte, password string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parsing panicked: %v", r)
		}
	}()

	var reader *pdf.Reader
	if password != "" {
		reader, err = pdf.NewReaderEncrypted(bytes.NewReader(data), int64(len(data)), func() string { return password })
	} else {
		reader, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	}
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	raw, err := io.ReadAll(io.LimitReader(plain, maxStatementText))
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("pdf produced no extractable text")
	}
	return string(raw), nil
}

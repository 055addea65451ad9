package fileimport

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oksbwn/finsight/internal/ingest"
)

// ColumnMapping names the CSV headers carrying each transaction field.
// Empty fields are sniffed from the header row using common synonyms; only
// a date and an amount (or debit/credit pair) are mandatory.
type ColumnMapping struct {
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Debit       string `json:"debit,omitempty"`
	Credit      string `json:"credit,omitempty"`
	Type        string `json:"type,omitempty"`
	Reference   string `json:"reference,omitempty"`
	Mask        string `json:"mask,omitempty"`
}

// headerSynonyms drive header sniffing. Matching is case-insensitive on the
// trimmed header text.
var headerSynonyms = map[string][]string{
	"date":        {"date", "txn date", "transaction date", "value date", "posting date"},
	"description": {"description", "narration", "details", "particulars", "remarks", "merchant"},
	"amount":      {"amount", "transaction amount", "amt"},
	"debit":       {"debit", "withdrawal", "withdrawal amt", "withdrawal amount", "dr"},
	"credit":      {"credit", "deposit", "deposit amt", "deposit amount", "cr"},
	"type":        {"type", "dr/cr", "cr/dr", "transaction type"},
	"reference":   {"reference", "ref no", "ref", "utr", "cheque no", "chq no"},
	"mask":        {"account", "account no", "a/c no", "card", "card no"},
}

var csvDateFormats = []string{
	"02/01/2006",
	"02-01-2006",
	"2006-01-02",
	"02-Jan-2006",
	"02 Jan 2006",
	"01/02/2006", // US exports
	"02/01/06",
}

// RowError reports one unparseable data row. The importer skips the row and
// keeps going; a single bad line never sinks a statement.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Line, e.Err)
}

// ParseCSV reads a delimited statement export and returns pre-extracted
// transactions ready for Pipeline.IngestExtracted, plus per-row errors for
// the rows it had to skip.
func ParseCSV(r io.Reader, mapping ColumnMapping) ([]ingest.Transaction, []RowError, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header row: %w", err)
	}

	cols, err := resolveColumns(header, mapping)
	if err != nil {
		return nil, nil, err
	}

	var (
		txs    []ingest.Transaction
		rowErr []RowError
		line   = 1
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			rowErr = append(rowErr, RowError{Line: line, Err: err})
			continue
		}

		tx, err := parseRow(record, cols)
		if err != nil {
			rowErr = append(rowErr, RowError{Line: line, Err: err})
			continue
		}
		txs = append(txs, *tx)
	}
	return txs, rowErr, nil
}

// columnIndexes are resolved 0-based positions, -1 when absent.
type columnIndexes struct {
	date, description, amount, debit, credit, typ, reference, mask int
}

func resolveColumns(header []string, mapping ColumnMapping) (columnIndexes, error) {
	cols := columnIndexes{date: -1, description: -1, amount: -1, debit: -1, credit: -1, typ: -1, reference: -1, mask: -1}

	find := func(explicit, concern string) int {
		for i, h := range header {
			h = strings.ToLower(strings.TrimSpace(h))
			if explicit != "" {
				if h == strings.ToLower(strings.TrimSpace(explicit)) {
					return i
				}
				continue
			}
			for _, syn := range headerSynonyms[concern] {
				if h == syn {
					return i
				}
			}
		}
		return -1
	}

	cols.date = find(mapping.Date, "date")
	cols.description = find(mapping.Description, "description")
	cols.amount = find(mapping.Amount, "amount")
	cols.debit = find(mapping.Debit, "debit")
	cols.credit = find(mapping.Credit, "credit")
	cols.typ = find(mapping.Type, "type")
	cols.reference = find(mapping.Reference, "reference")
	cols.mask = find(mapping.Mask, "mask")

	if cols.date == -1 {
		return cols, fmt.Errorf("no date column found in header %v", header)
	}
	if cols.amount == -1 && cols.debit == -1 && cols.credit == -1 {
		return cols, fmt.Errorf("no amount, debit or credit column found in header %v", header)
	}
	return cols, nil
}

func parseRow(record []string, cols columnIndexes) (*ingest.Transaction, error) {
	field := func(idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	occurred, err := parseCSVDate(field(cols.date))
	if err != nil {
		return nil, err
	}

	amount, direction, err := parseRowAmount(record, cols, field)
	if err != nil {
		return nil, err
	}

	tx := &ingest.Transaction{
		Amount:      amount,
		Direction:   direction,
		OccurredAt:  occurred,
		Account:     ingest.AccountHint{Mask: field(cols.mask)},
		Merchant:    ingest.Merchant{Raw: field(cols.description)},
		Description: field(cols.description),
		ReferenceID: field(cols.reference),
	}
	return tx, nil
}

// parseRowAmount decides the magnitude and direction. A debit/credit column
// pair wins; then an explicit type column; a signed single amount column is
// the last resort, negative meaning money out.
func parseRowAmount(record []string, cols columnIndexes, field func(int) string) (decimal.Decimal, ingest.Direction, error) {
	if cols.debit >= 0 || cols.credit >= 0 {
		if v := field(cols.debit); v != "" {
			amount, err := parseCSVAmount(v)
			if err != nil {
				return decimal.Zero, "", err
			}
			return amount, ingest.Debit, nil
		}
		if v := field(cols.credit); v != "" {
			amount, err := parseCSVAmount(v)
			if err != nil {
				return decimal.Zero, "", err
			}
			return amount, ingest.Credit, nil
		}
		return decimal.Zero, "", fmt.Errorf("both debit and credit cells empty")
	}

	raw := field(cols.amount)
	if raw == "" {
		return decimal.Zero, "", fmt.Errorf("empty amount cell")
	}
	amount, err := parseCSVAmount(strings.TrimPrefix(raw, "-"))
	if err != nil {
		return decimal.Zero, "", err
	}

	if t := strings.ToLower(field(cols.typ)); t != "" {
		switch {
		case strings.HasPrefix(t, "cr") || strings.Contains(t, "credit") || strings.Contains(t, "deposit"):
			return amount, ingest.Credit, nil
		default:
			return amount, ingest.Debit, nil
		}
	}
	if strings.HasPrefix(raw, "-") {
		return amount, ingest.Debit, nil
	}
	return amount, ingest.Credit, nil
}

func parseCSVAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "₹")
	s = strings.TrimPrefix(s, "Rs.")
	s = strings.TrimSpace(s)
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unparseable amount %q", s)
	}
	if amount.IsNegative() || amount.IsZero() {
		return decimal.Zero, fmt.Errorf("non-positive amount %q", s)
	}
	return amount, nil
}

func parseCSVDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, format := range csvDateFormats {
		if t, err := time.Parse(format, s); err == nil {
			if t.Year() < 100 {
				t = t.AddDate(2000, 0, 0)
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

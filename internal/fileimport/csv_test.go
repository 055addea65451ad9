package fileimport

import (
	"strings"
	"testing"
	"time"

	"github.com/oksbwn/finsight/internal/ingest"
)

func TestParseCSV_DebitCreditColumns(t *testing.T) {
	input := strings.Join([]string{
		"Txn Date,Narration,Withdrawal Amt,Deposit Amt,Ref No,Account",
		"01/09/2026,UPI-SWIGGY BANGALORE,450.00,,UTR556677,XX1234",
		"02/09/2026,SALARY AUG,,\"1,20,000.00\",SAL99821,XX1234",
	}, "\n")

	txs, rowErrs, err := ParseCSV(strings.NewReader(input), ColumnMapping{})
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(rowErrs) != 0 {
		t.Fatalf("expected no row errors, got %v", rowErrs)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}

	first := txs[0]
	if got := first.Amount.StringFixed(2); got != "450.00" {
		t.Errorf("amount = %s, want 450.00", got)
	}
	if first.Direction != ingest.Debit {
		t.Errorf("direction = %s, want DEBIT", first.Direction)
	}
	if want := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC); !first.OccurredAt.Equal(want) {
		t.Errorf("occurred at = %v, want %v", first.OccurredAt, want)
	}
	if first.Merchant.Raw != "UPI-SWIGGY BANGALORE" {
		t.Errorf("merchant raw = %q", first.Merchant.Raw)
	}
	if first.ReferenceID != "UTR556677" {
		t.Errorf("reference = %q", first.ReferenceID)
	}
	if first.Account.Mask != "XX1234" {
		t.Errorf("mask = %q", first.Account.Mask)
	}

	second := txs[1]
	if second.Direction != ingest.Credit {
		t.Errorf("direction = %s, want CREDIT", second.Direction)
	}
	if got := second.Amount.StringFixed(2); got != "120000.00" {
		t.Errorf("amount = %s, want 120000.00", got)
	}
}

func TestParseCSV_SignedAmountColumn(t *testing.T) {
	input := strings.Join([]string{
		"Date,Description,Amount",
		"2026-09-01,NETFLIX SUBSCRIPTION,-649.00",
		"2026-09-02,REFUND MYNTRA,1299.00",
	}, "\n")

	txs, _, err := ParseCSV(strings.NewReader(input), ColumnMapping{})
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	if txs[0].Direction != ingest.Debit || txs[0].Amount.StringFixed(2) != "649.00" {
		t.Errorf("negative amount should become a debit magnitude, got %s %s", txs[0].Direction, txs[0].Amount)
	}
	if txs[1].Direction != ingest.Credit {
		t.Errorf("positive amount should become a credit, got %s", txs[1].Direction)
	}
}

func TestParseCSV_TypeColumn(t *testing.T) {
	input := strings.Join([]string{
		"Date,Particulars,Amount,Dr/Cr",
		"01-09-2026,ATM WITHDRAWAL,2000.00,DR",
		"01-09-2026,INTEREST CREDIT,312.50,CR",
	}, "\n")

	txs, _, err := ParseCSV(strings.NewReader(input), ColumnMapping{})
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	if txs[0].Direction != ingest.Debit {
		t.Errorf("DR row direction = %s", txs[0].Direction)
	}
	if txs[1].Direction != ingest.Credit {
		t.Errorf("CR row direction = %s", txs[1].Direction)
	}
}

func TestParseCSV_ExplicitMapping(t *testing.T) {
	// Headers a sniffer would never guess; the caller maps them by hand.
	input := strings.Join([]string{
		"when,what,how_much",
		"02 Sep 2026,BESCOM BILL,-1130.00",
	}, "\n")

	mapping := ColumnMapping{Date: "when", Description: "what", Amount: "how_much"}
	txs, _, err := ParseCSV(strings.NewReader(input), mapping)
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
	if txs[0].Description != "BESCOM BILL" {
		t.Errorf("description = %q", txs[0].Description)
	}
	if txs[0].Direction != ingest.Debit {
		t.Errorf("direction = %s", txs[0].Direction)
	}
}

func TestParseCSV_BadRowsAreSkipped(t *testing.T) {
	input := strings.Join([]string{
		"Date,Description,Amount",
		"2026-09-01,GOOD ROW,-100.00",
		"not a date,BAD DATE,-50.00",
		"2026-09-02,BAD AMOUNT,lots",
		"2026-09-03,ANOTHER GOOD ROW,200.00",
	}, "\n")

	txs, rowErrs, err := ParseCSV(strings.NewReader(input), ColumnMapping{})
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	if len(rowErrs) != 2 {
		t.Fatalf("expected 2 row errors, got %v", rowErrs)
	}
	if rowErrs[0].Line != 3 || rowErrs[1].Line != 4 {
		t.Errorf("row error lines = %d, %d; want 3, 4", rowErrs[0].Line, rowErrs[1].Line)
	}
	if !strings.Contains(rowErrs[0].Error(), "unparseable date") {
		t.Errorf("first row error = %v", rowErrs[0])
	}
}

func TestParseCSV_HeaderValidation(t *testing.T) {
	tests := []struct {
		name   string
		header string
		errBit string
	}{
		{"no date column", "Description,Amount", "no date column"},
		{"no amount column", "Date,Description", "no amount"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := ParseCSV(strings.NewReader(tc.header+"\n"), ColumnMapping{})
			if err == nil || !strings.Contains(err.Error(), tc.errBit) {
				t.Fatalf("expected error containing %q, got %v", tc.errBit, err)
			}
		})
	}
}

func TestParseCSVDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"01/09/2026", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
		{"01-09-2026", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
		{"2026-09-01", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
		{"02-Sep-2026", time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)},
		{"02 Sep 2026", time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)},
		{"01/09/26", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		got, err := parseCSVDate(tc.in)
		if err != nil {
			t.Errorf("parseCSVDate(%q): %v", tc.in, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("parseCSVDate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if _, err := parseCSVDate("yesterday"); err == nil {
		t.Error("expected error for unparseable date")
	}
}

func TestParseCSVAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"450.00", "450.00", false},
		{"1,20,000.00", "120000.00", false},
		{"₹199.00", "199.00", false},
		{"Rs.55.50", "55.50", false},
		{"0.00", "", true},
		{"-10.00", "", true},
		{"lots", "", true},
	}
	for _, tc := range tests {
		got, err := parseCSVAmount(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseCSVAmount(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseCSVAmount(%q): %v", tc.in, err)
			continue
		}
		if got.StringFixed(2) != tc.want {
			t.Errorf("parseCSVAmount(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

// Package validate turns mapped spreadsheet rows into record drafts or row rejections.
package validate

import (
	"regexp"
	"strings"
	"time"

	"github.com/and161185/kyc-verifier/internal/columnmap"
	"github.com/and161185/kyc-verifier/internal/model"
)

// Rejection reasons reported to the uploader.
const (
	ReasonMissingField      = "missing required field"
	ReasonInvalidNationalID = "invalid national ID format (must be 12 digits)"
	ReasonInvalidTaxID      = "invalid tax ID format (must be 5 letters, 4 digits, 1 letter)"
	ReasonInvalidDOB        = "invalid date format for date of birth"
	ReasonDuplicate         = "combination already exists"
)

var (
	nationalIDRe = regexp.MustCompile(`^[0-9]{12}$`)
	taxIDRe      = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)
)

// dateLayouts are tried in order. Unpadded day and month fields also accept
// padded input. Day-first layouts come before the single month-first one, so
// "5/8/1990" is 5 August and "8/15/1990" only parses month-first.
var dateLayouts = []string{
	"2006-1-2",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"2006/1/2",
	"20060102",
	"2 January 2006",
	"2-Jan-2006",
	"Jan 2, 2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"1/2/2006",
}

// RowNumber converts a 0-based data row index to the 1-based sheet row, header included.
func RowNumber(dataIndex int) int { return dataIndex + 2 }

// NationalID reports whether s is exactly 12 ASCII digits.
func NationalID(s string) bool { return nationalIDRe.MatchString(s) }

// TaxID normalizes s to upper case and reports whether it matches AAAAA9999A.
func TaxID(s string) (string, bool) {
	up := strings.ToUpper(s)
	return up, taxIDRe.MatchString(up)
}

// ParseDate parses a date-of-birth cell into a UTC calendar date.
// Spreadsheet serial numbers are not accepted here; the sheet reader converts
// date-formatted workbook cells before they reach validation.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), true
		}
	}
	return time.Time{}, false
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Row validates one mapped row against p. Rules run in order and the first failure wins:
// required values, national-ID format, tax-ID format, date of birth.
func Row(p columnmap.Profile, row int, cells map[model.Field]string) (model.Record, *model.RowRejection) {
	get := func(f model.Field) string { return strings.TrimSpace(cells[f]) }

	rawNational, rawTax := get(model.FieldNationalID), get(model.FieldTaxID)
	reject := func(f model.Field, reason string) (model.Record, *model.RowRejection) {
		return model.Record{}, &model.RowRejection{
			Row:        row,
			NationalID: rawNational,
			TaxID:      rawTax,
			Field:      f,
			Reason:     reason,
		}
	}

	for _, f := range p.Required {
		if get(f) == "" {
			return reject(f, ReasonMissingField)
		}
	}

	if rawNational != "" && !NationalID(rawNational) {
		return reject(model.FieldNationalID, ReasonInvalidNationalID)
	}

	tax := rawTax
	if rawTax != "" {
		var ok bool
		if tax, ok = TaxID(rawTax); !ok {
			return reject(model.FieldTaxID, ReasonInvalidTaxID)
		}
	}

	var dob time.Time
	if raw := get(model.FieldDateOfBirth); raw != "" {
		var ok bool
		if dob, ok = ParseDate(raw); !ok {
			return reject(model.FieldDateOfBirth, ReasonInvalidDOB)
		}
	}

	return model.Record{
		Type:         p.Type,
		NationalID:   rawNational,
		TaxID:        tax,
		DisplayName:  orNotAvailable(get(model.FieldName)),
		GuardianName: orNotAvailable(get(model.FieldGuardian)),
		DateOfBirth:  dob,
		RowIndex:     row,
		State:        model.StatePending,
	}, nil
}

func orNotAvailable(s string) string {
	if s == "" {
		return model.NotAvailable
	}
	return s
}

// Package columnmap resolves free-form spreadsheet headers to canonical fields.
package columnmap

import (
	"github.com/and161185/kyc-verifier/internal/model"
)

// FieldAliases lists accepted headers for one canonical field, highest priority first.
type FieldAliases struct {
	Field   model.Field
	Aliases []string
}

// Table is an ordered alias configuration.
type Table []FieldAliases

// Mapping maps a canonical field to the observed header chosen for it.
type Mapping map[model.Field]string

// Resolve picks, for every field in t, the first alias present in headers.
// Header order is irrelevant; fields with no alias present stay unmapped.
func Resolve(headers []string, t Table) Mapping {
	seen := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		seen[h] = struct{}{}
	}

	m := make(Mapping, len(t))
	for _, fa := range t {
		for _, alias := range fa.Aliases {
			if _, ok := seen[alias]; ok {
				m[fa.Field] = alias
				break
			}
		}
	}
	return m
}

// Missing returns required fields without a resolved header, in the order given.
func (m Mapping) Missing(required []model.Field) []model.Field {
	var out []model.Field
	for _, f := range required {
		if _, ok := m[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}

// Apply projects a raw row (header -> cell) onto canonical fields.
// Unmapped fields are absent from the result.
func (m Mapping) Apply(row map[string]string) map[model.Field]string {
	out := make(map[model.Field]string, len(m))
	for f, header := range m {
		if v, ok := row[header]; ok {
			out[f] = v
		}
	}
	return out
}

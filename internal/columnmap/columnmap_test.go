package columnmap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/and161185/kyc-verifier/internal/model"
)

func TestResolve_PriorityOrderIsPinned(t *testing.T) {
	t.Parallel()

	p, ok := ProfileFor(model.TypeAadhaarPAN)
	require.True(t, ok)

	// Both "PAN" and "PAN No" present: "PAN No" is listed first.
	m := Resolve([]string{"PAN", "AADHAAR", "PAN No", "Name"}, p.Table)
	require.Equal(t, "PAN No", m[model.FieldTaxID])
	require.Equal(t, "AADHAAR", m[model.FieldNationalID])
	require.Equal(t, "Name", m[model.FieldName])

	// Header order must not matter.
	m2 := Resolve([]string{"Name", "PAN No", "AADHAAR", "PAN"}, p.Table)
	require.Equal(t, m, m2)

	m3 := Resolve([]string{"pan", "pan_number"}, p.Table)
	require.Equal(t, "pan_number", m3[model.FieldTaxID])
}

func TestResolve_TaxIDOrderPerType(t *testing.T) {
	t.Parallel()

	headers := []string{"AADHAAR", "PAN Number", "PAN No", "DOB"}
	cases := []struct {
		vt   model.VerificationType
		want string
	}{
		{model.TypePAN, "PAN Number"},
		{model.TypeAadhaarPAN, "PAN No"},
	}
	for _, tc := range cases {
		p, ok := ProfileFor(tc.vt)
		require.True(t, ok)
		m := Resolve(headers, p.Table)
		require.Equal(t, tc.want, m[model.FieldTaxID], "type=%s", tc.vt)
	}

	pan, _ := ProfileFor(model.TypePAN)
	link, _ := ProfileFor(model.TypeAadhaarPAN)
	require.Equal(t,
		[]string{"pan_number", "PAN Number", "PAN No", "PAN", "pan", "PAN_NO"},
		aliasesOf(pan.Table, model.FieldTaxID))
	require.Equal(t,
		[]string{"pan_number", "PAN No", "PAN Number", "PAN", "pan", "PAN_NO"},
		aliasesOf(link.Table, model.FieldTaxID))
}

func aliasesOf(t Table, f model.Field) []string {
	for _, fa := range t {
		if fa.Field == f {
			return fa.Aliases
		}
	}
	return nil
}

func TestResolve_TotalForRequiredFields(t *testing.T) {
	t.Parallel()

	for _, vt := range model.VerificationTypes {
		p, _ := ProfileFor(vt)
		for _, fa := range p.Table {
			for _, alias := range fa.Aliases {
				// one alias per field, varying which alias is used
				headers := []string{"unrelated"}
				for _, other := range p.Table {
					if other.Field == fa.Field {
						headers = append(headers, alias)
					} else {
						headers = append(headers, other.Aliases[len(other.Aliases)-1])
					}
				}
				m := Resolve(headers, p.Table)
				require.Empty(t, m.Missing(p.Required), "type=%s alias=%s", vt, alias)
				require.Equal(t, alias, m[fa.Field])
			}
		}
	}
}

func TestResolve_NeverFailsOnUnknownHeaders(t *testing.T) {
	t.Parallel()

	p, _ := ProfileFor(model.TypePAN)
	m := Resolve([]string{"foo", "bar", ""}, p.Table)
	require.Empty(t, m)
	require.Equal(t,
		[]model.Field{model.FieldTaxID, model.FieldName, model.FieldDateOfBirth},
		m.Missing(p.Required))

	require.Empty(t, Resolve(nil, p.Table))
}

func TestResolve_CaseSensitive(t *testing.T) {
	t.Parallel()

	p, _ := ProfileFor(model.TypePAN)
	m := Resolve([]string{"Pan_Number", "DATE OF BIRTH"}, p.Table)
	require.NotContains(t, m, model.FieldTaxID)
	require.NotContains(t, m, model.FieldDateOfBirth)
}

func TestMapping_Apply(t *testing.T) {
	t.Parallel()

	m := Mapping{
		model.FieldTaxID: "PAN No",
		model.FieldName:  "Name",
	}
	got := m.Apply(map[string]string{"PAN No": "abcde1234f", "Name": "Asha", "Other": "x"})
	require.Equal(t, map[model.Field]string{
		model.FieldTaxID: "abcde1234f",
		model.FieldName:  "Asha",
	}, got)

	got = m.Apply(map[string]string{"Name": "Asha"})
	require.NotContains(t, got, model.FieldTaxID)
}

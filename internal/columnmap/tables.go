package columnmap

import "github.com/and161185/kyc-verifier/internal/model"

var (
	taxIDAliases = FieldAliases{
		Field:   model.FieldTaxID,
		Aliases: []string{"pan_number", "PAN Number", "PAN No", "PAN", "pan", "PAN_NO"},
	}
	// aadhaar_pan ranks "PAN No" above "PAN Number".
	linkTaxIDAliases = FieldAliases{
		Field:   model.FieldTaxID,
		Aliases: []string{"pan_number", "PAN No", "PAN Number", "PAN", "pan", "PAN_NO"},
	}
	nationalIDAliases = FieldAliases{
		Field:   model.FieldNationalID,
		Aliases: []string{"aadhaar_number", "AADHAAR", "Aadhaar Number", "aadhaar", "AADHAAR_NUMBER"},
	}
	nameAliases = FieldAliases{
		Field:   model.FieldName,
		Aliases: []string{"name", "Name", "NAME", "full_name", "Full Name"},
	}
	guardianAliases = FieldAliases{
		Field:   model.FieldGuardian,
		Aliases: []string{"father_name", "Father Name", "fatherName", "FATHER_NAME"},
	}
	dobAliases = FieldAliases{
		Field:   model.FieldDateOfBirth,
		Aliases: []string{"date_of_birth", "Date of Birth", "DOB", "dob", "birth_date"},
	}
)

// Profile bundles the alias table and required fields of a verification type.
type Profile struct {
	Type     model.VerificationType
	Table    Table
	Required []model.Field
}

var profiles = map[model.VerificationType]Profile{
	model.TypePAN: {
		Type:     model.TypePAN,
		Table:    Table{taxIDAliases, nameAliases, guardianAliases, dobAliases},
		Required: []model.Field{model.FieldTaxID, model.FieldName, model.FieldDateOfBirth},
	},
	model.TypeAadhaarPAN: {
		Type:     model.TypeAadhaarPAN,
		Table:    Table{nationalIDAliases, linkTaxIDAliases, nameAliases, guardianAliases, dobAliases},
		Required: []model.Field{model.FieldNationalID, model.FieldTaxID, model.FieldDateOfBirth},
	},
}

// ProfileFor returns the built-in profile for t.
func ProfileFor(t model.VerificationType) (Profile, bool) {
	p, ok := profiles[t]
	return p, ok
}

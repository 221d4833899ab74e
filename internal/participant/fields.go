package participant

import (
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"example.com/statsimpact/internal/domain"
	"example.com/statsimpact/internal/filter"
)

// Form field names accepted by the edit endpoint.
const (
	FieldNom           = "nom"
	FieldPrenom        = "prenom"
	FieldAdresse       = "adresse"
	FieldVille         = "ville"
	FieldQuartierID    = "quartier_id"
	FieldEmail         = "email"
	FieldTelephone     = "telephone"
	FieldGenre         = "genre"
	FieldDateNaissance = "date_naissance"
	FieldTypePublic    = "type_public"
)

// Fields holds the submitted values of an edit. A nil pointer means the field
// was not submitted at all.
type Fields struct {
	Nom           *string
	Prenom        *string
	Adresse       *string
	Ville         *string
	QuartierID    *string
	Email         *string
	Telephone     *string
	Genre         *string
	DateNaissance *string
	TypePublic    *string
}

// FieldsFromForm extracts the submitted fields of a form post.
func FieldsFromForm(form url.Values) Fields {
	get := func(key string) *string {
		values, ok := form[key]
		if !ok {
			return nil
		}
		v := ""
		if len(values) > 0 {
			v = values[0]
		}
		return &v
	}
	return Fields{
		Nom:           get(FieldNom),
		Prenom:        get(FieldPrenom),
		Adresse:       get(FieldAdresse),
		Ville:         get(FieldVille),
		QuartierID:    get(FieldQuartierID),
		Email:         get(FieldEmail),
		Telephone:     get(FieldTelephone),
		Genre:         get(FieldGenre),
		DateNaissance: get(FieldDateNaissance),
		TypePublic:    get(FieldTypePublic),
	}
}

// Apply merges fields into current and returns the result with the names of
// the attributes whose value changed.
//
// Nom, Prenom and Adresse keep their stored value when blank. Ville,
// QuartierID, Email, Telephone and Genre are cleared by a blank submission.
// Unparsable dates, quartier ids and genders leave the attribute unchanged.
// TypePublic is upper-cased and falls back to the stored value.
func Apply(current domain.Participant, fields Fields) (domain.Participant, []string) {
	next := current
	changed := make([]string, 0)

	keep := func(name string, submitted *string, dst *string) {
		if v, ok := nonBlank(submitted); ok && v != *dst {
			*dst = v
			changed = append(changed, name)
		}
	}
	keep(FieldNom, fields.Nom, &next.Nom)
	keep(FieldPrenom, fields.Prenom, &next.Prenom)
	keep(FieldAdresse, fields.Adresse, &next.Adresse)

	nullable := func(name string, submitted *string, dst **string) {
		if submitted == nil {
			return
		}
		v := strings.TrimSpace(*submitted)
		switch {
		case v == "" && *dst != nil:
			*dst = nil
			changed = append(changed, name)
		case v != "" && (*dst == nil || **dst != v):
			*dst = &v
			changed = append(changed, name)
		}
	}
	nullable(FieldVille, fields.Ville, &next.Ville)
	nullable(FieldEmail, fields.Email, &next.Email)
	nullable(FieldTelephone, fields.Telephone, &next.Telephone)

	if fields.QuartierID != nil {
		raw := strings.TrimSpace(*fields.QuartierID)
		if raw == "" {
			if next.QuartierID != nil {
				next.QuartierID = nil
				changed = append(changed, FieldQuartierID)
			}
		} else if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			if next.QuartierID == nil || *next.QuartierID != id {
				next.QuartierID = &id
				changed = append(changed, FieldQuartierID)
			}
		}
	}

	if fields.Genre != nil {
		raw := strings.TrimSpace(*fields.Genre)
		if raw == "" {
			if next.Gender != nil {
				next.Gender = nil
				changed = append(changed, FieldGenre)
			}
		} else if g, ok := domain.ParseGender(raw); ok {
			if next.Gender == nil || *next.Gender != g {
				next.Gender = &g
				changed = append(changed, FieldGenre)
			}
		}
	}

	if fields.DateNaissance != nil {
		if born := filter.ParseDate(*fields.DateNaissance); born != nil {
			if next.BirthDate == nil || !next.BirthDate.Equal(*born) {
				next.BirthDate = born
				changed = append(changed, FieldDateNaissance)
			}
		}
	}

	if v, ok := nonBlank(fields.TypePublic); ok {
		upper := cases.Upper(language.French).String(v)
		if upper != next.TypePublic {
			next.TypePublic = upper
			changed = append(changed, FieldTypePublic)
		}
	}

	return next, changed
}

func nonBlank(v *string) (string, bool) {
	if v == nil {
		return "", false
	}
	trimmed := strings.TrimSpace(*v)
	return trimmed, trimmed != ""
}

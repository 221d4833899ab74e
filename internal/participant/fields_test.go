package participant

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/statsimpact/internal/domain"
)

func strPtr(s string) *string { return &s }

func storedParticipant() domain.Participant {
	quartier := int64(2)
	female := domain.GenderFemale
	born := time.Date(2010, time.May, 4, 0, 0, 0, 0, time.UTC)
	return domain.Participant{
		ID:         7,
		Nom:        "Martin",
		Prenom:     "Léa",
		BirthDate:  &born,
		Gender:     &female,
		Adresse:    "1 rue Haute",
		Ville:      strPtr("Lyon"),
		QuartierID: &quartier,
		Email:      strPtr("lea@example.org"),
		Telephone:  strPtr("0600000000"),
		TypePublic: "JEUNE",
	}
}

func TestApplyBlankSubmissionClearsNullableFields(t *testing.T) {
	next, changed := Apply(storedParticipant(), FieldsFromForm(url.Values{
		"nom":   {""},
		"ville": {""},
		"email": {"   "},
	}))

	require.Equal(t, "Martin", next.Nom)
	require.Nil(t, next.Ville)
	require.Nil(t, next.Email)
	require.Equal(t, []string{FieldVille, FieldEmail}, changed)
}

func TestApplyIgnoresUnparsableValues(t *testing.T) {
	current := storedParticipant()
	next, changed := Apply(current, FieldsFromForm(url.Values{
		"quartier_id":    {"abc"},
		"genre":          {"inconnu"},
		"date_naissance": {"04/05/2010"},
	}))

	require.Empty(t, changed)
	require.Equal(t, current, next)
}

func TestApplyNormalisesAndDetectsChanges(t *testing.T) {
	next, changed := Apply(storedParticipant(), FieldsFromForm(url.Values{
		"prenom":         {" Lea "},
		"genre":          {"homme"},
		"quartier_id":    {"3"},
		"date_naissance": {"2011-01-02"},
		"type_public":    {"sénior"},
		"telephone":      {"0600000000"},
	}))

	require.Equal(t, "Lea", next.Prenom)
	require.Equal(t, domain.GenderMale, *next.Gender)
	require.Equal(t, int64(3), *next.QuartierID)
	require.Equal(t, "2011-01-02", next.BirthDate.Format("2006-01-02"))
	require.Equal(t, "SÉNIOR", next.TypePublic)
	require.Equal(t, []string{FieldPrenom, FieldQuartierID, FieldGenre, FieldDateNaissance, FieldTypePublic}, changed)
}

func TestApplyLeavesUnsubmittedFieldsAlone(t *testing.T) {
	current := storedParticipant()
	next, changed := Apply(current, Fields{})
	require.Empty(t, changed)
	require.Equal(t, current, next)
}

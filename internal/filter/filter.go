// Package filter turns raw dashboard query parameters into a validated Filter.
package filter

import (
	"strconv"
	"strings"
	"time"

	"example.com/statsimpact/internal/auth"
	"example.com/statsimpact/internal/domain"
)

// DateLayout is the ISO calendar date format accepted for date bounds.
const DateLayout = "2006-01-02"

// Recognized query parameter names.
const (
	ParamSecteur    = "secteur"
	ParamDateFrom   = "date_from"
	ParamDateTo     = "date_to"
	ParamActivityID = "activite_id"
	ParamAgeMin     = "age_min"
	ParamAgeMax     = "age_max"
	ParamGenre      = "genre"
)

// Filter is the canonical dashboard scope. Nil pointers and an empty Secteur
// mean the dimension is unconstrained.
type Filter struct {
	Secteur    string         `json:"secteur,omitempty"`
	DateFrom   *time.Time     `json:"date_from,omitempty"`
	DateTo     *time.Time     `json:"date_to,omitempty"`
	ActivityID *int64         `json:"activite_id,omitempty"`
	AgeMin     *int           `json:"age_min,omitempty"`
	AgeMax     *int           `json:"age_max,omitempty"`
	Gender     *domain.Gender `json:"genre,omitempty"`
}

// Normalize parses raw parameters into a Filter. It never fails: malformed
// values are dropped. A sector-restricted identity is pinned to its sector
// whatever the caller submitted.
func Normalize(raw map[string][]string, claims *auth.Claims) Filter {
	var f Filter

	f.Secteur = first(raw, ParamSecteur)
	f.DateFrom = parseDate(first(raw, ParamDateFrom))
	f.DateTo = parseDate(first(raw, ParamDateTo))
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		f.DateFrom, f.DateTo = f.DateTo, f.DateFrom
	}

	if id, ok := parseInt(first(raw, ParamActivityID)); ok && id > 0 {
		v := int64(id)
		f.ActivityID = &v
	}

	f.AgeMin = parseAge(first(raw, ParamAgeMin))
	f.AgeMax = parseAge(first(raw, ParamAgeMax))
	if f.AgeMin != nil && f.AgeMax != nil && *f.AgeMin > *f.AgeMax {
		f.AgeMin, f.AgeMax = f.AgeMax, f.AgeMin
	}

	if g, ok := domain.ParseGender(first(raw, ParamGenre)); ok {
		f.Gender = &g
	}

	if claims.IsSectorRestricted() {
		f.Secteur = claims.Secteur
	}
	return f
}

// WithYearDefault returns a copy covering Jan 1 to Dec 31 of now's year when
// neither date bound is set. A single bound is left as is.
func (f Filter) WithYearDefault(now time.Time) Filter {
	if f.DateFrom != nil || f.DateTo != nil {
		return f
	}
	from := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(now.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
	f.DateFrom = &from
	f.DateTo = &to
	return f
}

// HasDemographics reports whether the filter restricts the participant population.
func (f Filter) HasDemographics() bool {
	return f.AgeMin != nil || f.AgeMax != nil || f.Gender != nil
}

// ActivityQuery projects the filter onto the repository activity query.
func (f Filter) ActivityQuery() domain.ActivityQuery {
	return domain.ActivityQuery{
		Secteur:    f.Secteur,
		From:       f.DateFrom,
		To:         f.DateTo,
		WorkshopID: f.ActivityID,
	}
}

// Values renders the filter back into query parameters.
func (f Filter) Values() map[string][]string {
	out := make(map[string][]string)
	if f.Secteur != "" {
		out[ParamSecteur] = []string{f.Secteur}
	}
	if f.DateFrom != nil {
		out[ParamDateFrom] = []string{f.DateFrom.Format(DateLayout)}
	}
	if f.DateTo != nil {
		out[ParamDateTo] = []string{f.DateTo.Format(DateLayout)}
	}
	if f.ActivityID != nil {
		out[ParamActivityID] = []string{strconv.FormatInt(*f.ActivityID, 10)}
	}
	if f.AgeMin != nil {
		out[ParamAgeMin] = []string{strconv.Itoa(*f.AgeMin)}
	}
	if f.AgeMax != nil {
		out[ParamAgeMax] = []string{strconv.Itoa(*f.AgeMax)}
	}
	if f.Gender != nil {
		out[ParamGenre] = []string{string(*f.Gender)}
	}
	return out
}

func first(raw map[string][]string, key string) string {
	for _, v := range raw[key] {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// ParseDate parses an ISO calendar date, returning nil when value is blank or malformed.
func ParseDate(value string) *time.Time {
	return parseDate(strings.TrimSpace(value))
}

func parseDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseInt(value string) (int, bool) {
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func parseAge(value string) *int {
	age, ok := parseInt(value)
	if !ok || age < 0 {
		return nil
	}
	return &age
}

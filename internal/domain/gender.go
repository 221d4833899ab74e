package domain

import "strings"

// Gender is the normalized gender attribute of a participant.
type Gender string

const (
	GenderFemale Gender = "F"
	GenderMale   Gender = "M"
	GenderOther  Gender = "AUTRE"
)

// ParseGender maps free-form input onto a Gender. The second return is false
// when the value is not recognized.
func ParseGender(raw string) (Gender, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "f", "femme":
		return GenderFemale, true
	case "m", "h", "homme":
		return GenderMale, true
	case "autre", "x":
		return GenderOther, true
	}
	return "", false
}

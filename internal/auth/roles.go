package auth

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Role identifies what part of the organisation a user may see.
type Role string

// Known roles.
const (
	RoleFinance            Role = "finance"
	RoleDirectrice         Role = "directrice"
	RoleResponsableSecteur Role = "responsable_secteur"
	RoleAdminTech          Role = "admin_tech"
)

// aliases maps folded spellings to canonical roles. "financière" folds to
// "financiere" once diacritics are stripped.
var aliases = map[string]Role{
	"finance":             RoleFinance,
	"financiere":          RoleFinance,
	"directrice":          RoleDirectrice,
	"responsable_secteur": RoleResponsableSecteur,
	"admin_tech":          RoleAdminTech,
}

// ParseRole folds case and accents and maps known spellings onto a canonical
// Role. Unknown roles are returned folded and grant nothing.
func ParseRole(raw string) Role {
	folded := fold(raw)
	if role, ok := aliases[folded]; ok {
		return role
	}
	return Role(folded)
}

func fold(raw string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.TrimSpace(raw))
	if err != nil {
		out = raw
	}
	return strings.ToLower(out)
}

// IsSectorRestricted reports whether the identity only sees its assigned sector.
func (c *Claims) IsSectorRestricted() bool {
	return c != nil && c.Role == RoleResponsableSecteur
}

// CanViewStats reports whether the identity may open the impact dashboard.
// A sector-restricted identity without an assigned sector sees nothing.
func (c *Claims) CanViewStats() bool {
	if c == nil {
		return false
	}
	switch c.Role {
	case RoleFinance, RoleDirectrice, RoleAdminTech:
		return true
	case RoleResponsableSecteur:
		return c.Secteur != ""
	}
	return false
}

// CanListSectors reports whether the identity may pick any sector in the dashboard.
func (c *Claims) CanListSectors() bool {
	if c == nil {
		return false
	}
	switch c.Role {
	case RoleFinance, RoleDirectrice, RoleAdminTech:
		return true
	}
	return false
}

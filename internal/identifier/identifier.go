// Package identifier normalizes and validates Research Resource Identifiers.
// Every other component runs raw input through Normalize before touching the
// network or the store.
package identifier

import (
	"regexp"
	"strings"

	dErrors "github.com/Africa-PID-Alliance/DOCiD-sub001/pkg/domain-errors"
)

// Scheme is the constant curie prefix carried by every canonical identifier.
const Scheme = "RRID:"

// Family tags the registry authority an identifier body belongs to.
type Family string

const (
	FamilyTool     Family = "SCR"   // SciCrunch registry: software, databases, core facilities
	FamilyAntibody Family = "AB"    // Antibody Registry
	FamilyCellLine Family = "CVCL"  // Cellosaurus cell lines
	FamilyOrganism Family = "MMRRC" // Mutant Mouse Resource & Research Centers
)

// families is the closed set of accepted prefix patterns. Each family is
// TAG underscore digits; there is no fuzzy matching and no partial match.
var families = map[Family]*regexp.Regexp{
	FamilyTool:     regexp.MustCompile(`^SCR_\d+$`),
	FamilyAntibody: regexp.MustCompile(`^AB_\d+$`),
	FamilyCellLine: regexp.MustCompile(`^CVCL_\d+$`),
	FamilyOrganism: regexp.MustCompile(`^MMRRC_\d+$`),
}

// Identifier is a validated RRID in canonical form.
type Identifier struct {
	// Curie is the full canonical form, e.g. "RRID:SCR_012345".
	Curie string
	// Body is the canonical form without the scheme, e.g. "SCR_012345".
	Body string
	// Family is the prefix family the body matched.
	Family Family
}

func (id Identifier) String() string { return id.Curie }

// Normalize validates raw input against the known family patterns and
// returns the canonical identifier. Input is case-insensitive, surrounding
// whitespace is ignored, and the "RRID:" scheme is optional on input and
// always present on output. Pure function, no I/O.
func Normalize(raw string) (Identifier, error) {
	body := strings.ToUpper(strings.TrimSpace(raw))
	body = strings.TrimPrefix(body, Scheme)
	if body == "" {
		return Identifier{}, dErrors.New(dErrors.CodeValidation, "identifier must not be empty")
	}
	for family, pattern := range families {
		if pattern.MatchString(body) {
			return Identifier{
				Curie:  Scheme + body,
				Body:   body,
				Family: family,
			}, nil
		}
	}
	return Identifier{}, dErrors.Newf(dErrors.CodeValidation, "unrecognized identifier format: %q", raw)
}

// IsWellFormed reports whether raw already matches a known family pattern.
// The gateway uses this to decide between exact-term and free-text queries.
func IsWellFormed(raw string) bool {
	_, err := Normalize(raw)
	return err == nil
}

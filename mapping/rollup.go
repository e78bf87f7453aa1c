package mapping

import (
	"strings"

	logger "github.com/Financial-Times/go-logger"

	"github.com/Financial-Times/thesaurus-mapping-extractor/evs"
)

const (
	ctrpSource       = "CTRP"
	displayNameGroup = "DN"

	// characters that would break a code|displayName record
	recordBreakers = "|\r\n"
)

// Domain selects the menu eligibility rule applied during rollup.
type Domain string

const (
	DomainDisease      Domain = "disease"
	DomainIntervention Domain = "intervention"
)

func ParseDomain(s string) (Domain, bool) {
	switch Domain(strings.ToLower(strings.TrimSpace(s))) {
	case DomainDisease:
		return DomainDisease, true
	case DomainIntervention:
		return DomainIntervention, true
	}
	return "", false
}

// ChooseDisplayName picks the name a concept is published under: the preferred
// name, replaced by the display name when there is one, replaced by the first CTRP
// display name synonym when there is one.
func ChooseDisplayName(c *evs.Concept) string {
	name := c.PreferredName
	if c.DisplayName != "" {
		name = c.DisplayName
	}
	if dn := c.FilteredSynonyms(ctrpSource, displayNameGroup); len(dn) > 0 {
		name = dn[0].Name
	}
	return name
}

func IsMenuItem(c *evs.Concept, domain Domain) bool {
	if domain == DomainIntervention {
		return true
	}
	return (c.IsDisease && (c.IsMainType || c.IsSubtype)) || c.IsDiseaseStage
}

// Rollup folds concepts into a table with one mapping per case-insensitive display
// name. The first concept to produce a name decides the mapping's display name,
// menu flag and URL; later ones only add their code. Blank names, and names that
// cannot be written as a single output record, are skipped.
func Rollup(concepts []*evs.Concept, domain Domain) *Table {
	table := NewTable()
	for _, c := range concepts {
		name := strings.TrimSpace(ChooseDisplayName(c))
		if name == "" {
			logger.WithField("code", c.Code).Warn("Concept has no usable name, leaving it out of the mappings")
			continue
		}
		if strings.ContainsAny(name, recordBreakers) {
			logger.WithField("code", c.Code).WithField("name", name).Warn("Concept name contains a record separator, leaving it out of the mappings")
			continue
		}
		key := strings.ToLower(name)

		if m, ok := table.Get(key); ok {
			if !m.hasCode(c.Code) {
				m.Codes = append(m.Codes, c.Code)
			}
			continue
		}

		table.add(&Mapping{
			Key:         key,
			DisplayName: name,
			Codes:       []string{c.Code},
			FriendlyURL: FriendlyURL(name),
			IsMenuItem:  IsMenuItem(c, domain),
		})
	}
	return table
}

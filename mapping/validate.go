package mapping

import (
	"fmt"
	"strings"

	logger "github.com/Financial-Times/go-logger"
)

type ValidationKind string

const (
	DuplicateURL ValidationKind = "duplicate-url"
	InvalidURL   ValidationKind = "invalid-url"
)

// ValidationError describes one mapping that cannot be published.
type ValidationError struct {
	Kind        ValidationKind
	FriendlyURL string
	Codes       []string
	// ConflictingCodes are the codes of the first mapping that claimed the URL.
	ConflictingCodes []string
}

func (e ValidationError) Error() string {
	switch e.Kind {
	case DuplicateURL:
		return fmt.Sprintf("duplicate URL %s: codes %s conflict with %s", e.FriendlyURL,
			strings.Join(e.Codes, ","), strings.Join(e.ConflictingCodes, ","))
	default:
		return fmt.Sprintf("URL %s for codes %s contains invalid characters", e.FriendlyURL, strings.Join(e.Codes, ","))
	}
}

// Validate checks every entry for URL uniqueness and URL shape, reporting all
// violations rather than stopping at the first.
func Validate(entries []*Mapping) (bool, []ValidationError) {
	var problems []ValidationError
	owners := make(map[string]*Mapping, len(entries))

	for _, m := range entries {
		if first, ok := owners[m.FriendlyURL]; ok {
			problems = append(problems, ValidationError{
				Kind:             DuplicateURL,
				FriendlyURL:      m.FriendlyURL,
				Codes:            m.Codes,
				ConflictingCodes: first.Codes,
			})
		} else {
			owners[m.FriendlyURL] = m
		}

		if !SlugPattern.MatchString(m.FriendlyURL) {
			problems = append(problems, ValidationError{
				Kind:        InvalidURL,
				FriendlyURL: m.FriendlyURL,
				Codes:       m.Codes,
			})
		}
	}

	for _, p := range problems {
		logger.WithField("friendlyUrl", p.FriendlyURL).
			WithField("codes", strings.Join(p.Codes, ",")).
			WithField("conflictingCodes", strings.Join(p.ConflictingCodes, ",")).
			Error(p.Error())
	}
	return len(problems) == 0, problems
}

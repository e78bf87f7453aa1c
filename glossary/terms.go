package glossary

import (
	"context"
	"strings"
	"sync"

	logger "github.com/Financial-Times/go-logger"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Financial-Times/thesaurus-mapping-extractor/evs"
	"github.com/Financial-Times/thesaurus-mapping-extractor/mapping"
)

type Fetcher interface {
	Fetch(ctx context.Context, code string) (*evs.Concept, error)
}

// TermReport summarises how a term list agrees with EVS.
type TermReport struct {
	Terms int
	// NoCode counts terms without a thesaurus cross reference.
	NoCode int
	// NotFound counts terms whose thesaurus code EVS does not know.
	NotFound int
	// Mismatches counts terms whose URL differs from the one EVS' display name gives.
	Mismatches int
}

// CheckTerms looks up every cross-referenced term in EVS and compares the URL its
// glossary name produces with the URL of the EVS display name. Unknown codes are
// counted; any other lookup failure stops the check.
func CheckTerms(ctx context.Context, fetcher Fetcher, terms []Term) (TermReport, error) {
	report := TermReport{Terms: len(terms)}
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	for _, term := range terms {
		if !term.HasThesaurusCode() {
			report.NoCode++
			continue
		}
		term := term
		group.Go(func() error {
			code := strings.ToUpper(strings.TrimSpace(term.NCIID))
			concept, err := fetcher.Fetch(groupCtx, code)
			if err != nil {
				if evs.IsNotFound(err) {
					logger.WithField("term", term.Code).WithField("code", code).Debug("Term code not found in EVS")
					mu.Lock()
					report.NotFound++
					mu.Unlock()
					return nil
				}
				return errors.Wrapf(err, "checking term %s", term.Code)
			}

			evsURL := mapping.FriendlyURL(mapping.ChooseDisplayName(concept))
			if evsURL != mapping.FriendlyURL(term.Name) {
				logger.WithField("term", term.Code).WithField("code", code).WithField("evsUrl", evsURL).Debug("Term name does not match EVS")
				mu.Lock()
				report.Mismatches++
				mu.Unlock()
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return report, err
	}

	if report.NotFound > 0 || report.NoCode > 0 {
		logger.WithField("notFound", report.NotFound).
			WithField("noCode", report.NoCode).
			WithField("mismatches", report.Mismatches).
			Warnf("%d of %d terms could not be matched to EVS", report.NotFound+report.NoCode, report.Terms)
	}
	return report, nil
}

package crawler

import (
	"context"
	"strings"
	"sync"

	logger "github.com/Financial-Times/go-logger"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Financial-Times/thesaurus-mapping-extractor/evs"
)

// Fetcher resolves one concept code. *evs.Store is the production implementation.
type Fetcher interface {
	Fetch(ctx context.Context, code string) (*evs.Concept, error)
}

type Options struct {
	// ChildFilter decides which sub-concept links are followed. Defaults to
	// IsThesaurusCode.
	ChildFilter func(link evs.ConceptLink) bool
}

type Crawler struct {
	fetcher     Fetcher
	childFilter func(link evs.ConceptLink) bool
}

func New(fetcher Fetcher, opts Options) *Crawler {
	filter := opts.ChildFilter
	if filter == nil {
		filter = IsThesaurusCode
	}
	return &Crawler{fetcher: fetcher, childFilter: filter}
}

// IsThesaurusCode accepts links to NCI Thesaurus C-codes.
func IsThesaurusCode(link evs.ConceptLink) bool {
	return strings.HasPrefix(link.Code, "C")
}

type crawl struct {
	c       *Crawler
	group   *errgroup.Group
	ctx     context.Context
	mu      sync.Mutex
	visited map[string]bool
	found   map[string]*evs.Concept
	pruned  int
}

// Crawl returns every concept reachable from rootCode through sub-concept links,
// root first, each concept instance exactly once.
//
// A sub-concept the service does not know is logged and skipped. A missing root,
// or any other failure, aborts the whole crawl: a partial tree would silently
// produce an incomplete mapping table.
func (c *Crawler) Crawl(ctx context.Context, rootCode string) ([]*evs.Concept, error) {
	root, err := c.fetcher.Fetch(ctx, rootCode)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching root concept %s", rootCode)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	cr := &crawl{
		c:       c,
		group:   group,
		ctx:     groupCtx,
		visited: map[string]bool{rootCode: true},
		found:   map[string]*evs.Concept{rootCode: root},
	}
	cr.expand(root)

	if err := group.Wait(); err != nil {
		return nil, errors.Wrapf(err, "crawling %s", rootCode)
	}

	concepts := cr.ordered(root)
	logger.WithField("root", rootCode).
		WithField("concepts", len(concepts)).
		WithField("pruned", cr.pruned).
		Infof("Crawled %s", root)
	return concepts, nil
}

// expand schedules a fetch for every unvisited child of parent.
func (cr *crawl) expand(parent *evs.Concept) {
	for _, link := range parent.SubConcepts {
		if !cr.c.childFilter(link) || !cr.visit(link.Code) {
			continue
		}
		code := link.Code
		parentCode := parent.Code
		cr.group.Go(func() error {
			child, err := cr.c.fetcher.Fetch(cr.ctx, code)
			if err != nil {
				if evs.IsNotFound(err) {
					logger.WithField("code", code).WithField("parent", parentCode).Warn("Sub-concept not found, skipping branch")
					cr.prune()
					return nil
				}
				return errors.Wrapf(err, "fetching %s (child of %s)", code, parentCode)
			}
			cr.record(code, child)
			cr.expand(child)
			return nil
		})
	}
}

func (cr *crawl) visit(code string) bool {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if cr.visited[code] {
		return false
	}
	cr.visited[code] = true
	return true
}

func (cr *crawl) record(code string, c *evs.Concept) {
	cr.mu.Lock()
	cr.found[code] = c
	cr.mu.Unlock()
}

func (cr *crawl) prune() {
	cr.mu.Lock()
	cr.pruned++
	cr.mu.Unlock()
}

// ordered walks the fetched graph depth first from root, so the result does not
// depend on which sibling fetch finished first.
func (cr *crawl) ordered(root *evs.Concept) []*evs.Concept {
	seen := map[*evs.Concept]bool{}
	var out []*evs.Concept
	stack := []*evs.Concept{root}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
		for i := len(c.SubConcepts) - 1; i >= 0; i-- {
			if child, ok := cr.found[c.SubConcepts[i].Code]; ok && !seen[child] {
				stack = append(stack, child)
			}
		}
	}
	return out
}

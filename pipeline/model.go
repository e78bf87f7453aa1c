package pipeline

import (
	"fmt"
	"strings"

	"github.com/Financial-Times/thesaurus-mapping-extractor/evs"
	"github.com/Financial-Times/thesaurus-mapping-extractor/glossary"
	"github.com/Financial-Times/thesaurus-mapping-extractor/mapping"
)

// Tree names a thesaurus subtree to extract, e.g. diseases rooted at C7057.
type Tree struct {
	Name     string
	RootCode string
	Domain   mapping.Domain
}

// ParseTrees reads a comma separated list of name:rootCode:domain triples.
func ParseTrees(s string) ([]Tree, error) {
	var trees []Tree
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("tree %q: expected name:rootCode:domain", part)
		}
		domain, ok := mapping.ParseDomain(fields[2])
		if !ok {
			return nil, fmt.Errorf("tree %q: unknown domain %q", part, fields[2])
		}
		trees = append(trees, Tree{
			Name:     strings.TrimSpace(fields[0]),
			RootCode: strings.ToUpper(strings.TrimSpace(fields[1])),
			Domain:   domain,
		})
	}
	if len(trees) == 0 {
		return nil, fmt.Errorf("no trees configured")
	}
	return trees, nil
}

type TreeResult struct {
	Tree     Tree
	Concepts int
	Mappings int
	Accepted int
	TooLong  int
	Valid    bool
	Problems []mapping.ValidationError
	Files    []string
}

type Summary struct {
	TransactionID string
	Trees         []TreeResult
	Glossaries    []glossary.Result
	Terms         map[string]glossary.TermReport
	Fetches       evs.StoreStats
}

// OK reports whether every tree and glossary validated and was written.
func (s Summary) OK() bool {
	for _, t := range s.Trees {
		if !t.Valid {
			return false
		}
	}
	for _, g := range s.Glossaries {
		if !g.Valid {
			return false
		}
	}
	return true
}

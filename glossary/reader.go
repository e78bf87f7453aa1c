package glossary

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/Financial-Times/thesaurus-mapping-extractor/mapping"
)

const (
	noThesaurusCode = "NULL"
	maxLineLength   = 1024 * 1024
)

// Term is one record of a pipe-delimited glossary export: code|name[|nciCode].
type Term struct {
	Code  string
	Name  string
	NCIID string
}

// HasThesaurusCode reports whether the term carries a cross reference to EVS.
func (t Term) HasThesaurusCode() bool {
	id := strings.TrimSpace(t.NCIID)
	return id != "" && !strings.EqualFold(id, noThesaurusCode)
}

// Read parses one term per line. Fields are split on '|' only: glossary names
// carry literal quotes, so no CSV quoting rules apply.
func Read(r io.Reader) ([]Term, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)

	var terms []Term
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		record := strings.Split(line, "|")
		if len(record) < 2 {
			return nil, errors.Errorf("glossary line %d: expected at least 2 fields, got %d", n, len(record))
		}
		t := Term{Code: strings.TrimSpace(record[0]), Name: strings.TrimSpace(record[1])}
		if len(record) > 2 {
			t.NCIID = strings.TrimSpace(record[2])
		}
		terms = append(terms, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading glossary")
	}
	return terms, nil
}

func ReadFile(path string) ([]Term, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening glossary %s", path)
	}
	defer f.Close()

	terms, err := Read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return terms, nil
}

// Mappings gives each term its own mapping; glossary names are not rolled up.
func Mappings(terms []Term) []*mapping.Mapping {
	out := make([]*mapping.Mapping, 0, len(terms))
	for _, t := range terms {
		out = append(out, &mapping.Mapping{
			Key:         strings.ToLower(t.Name),
			DisplayName: t.Name,
			Codes:       []string{t.Code},
			FriendlyURL: mapping.FriendlyURL(t.Name),
		})
	}
	return out
}

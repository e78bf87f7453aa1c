package glossary

import (
	logger "github.com/Financial-Times/go-logger"

	"github.com/Financial-Times/thesaurus-mapping-extractor/mapping"
)

// Writer is the subset of output.Writer the glossary needs.
type Writer interface {
	WriteURLMappings(name string, entries []*mapping.Mapping) (string, error)
	WriteTooLong(name string, entries []*mapping.Mapping) (string, error)
}

type Result struct {
	Name     string
	Terms    int
	Accepted int
	TooLong  int
	Valid    bool
	Problems []mapping.ValidationError
	Files    []string
}

// ProcessGlossary filters and validates the URL mappings for a glossary and, when
// they are valid, writes the url and too-long files.
func ProcessGlossary(name string, terms []Term, filter mapping.Filter, w Writer) (Result, error) {
	accepted, tooLong := filter.Apply(Mappings(terms))
	res := Result{
		Name:     name,
		Terms:    len(terms),
		Accepted: len(accepted),
		TooLong:  len(tooLong),
	}

	res.Valid, res.Problems = mapping.Validate(accepted)
	if !res.Valid {
		logger.WithField("glossary", name).WithField("problems", len(res.Problems)).Error("Glossary mappings failed validation, nothing written")
		return res, nil
	}

	path, err := w.WriteURLMappings(name, accepted)
	if err != nil {
		return res, err
	}
	res.Files = append(res.Files, path)

	path, err = w.WriteTooLong(name, tooLong)
	if err != nil {
		return res, err
	}
	res.Files = append(res.Files, path)

	logger.WithField("glossary", name).
		WithField("accepted", res.Accepted).
		WithField("tooLong", res.TooLong).
		Infof("Processed %s", name)
	return res, nil
}

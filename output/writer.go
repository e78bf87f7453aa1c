package output

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/Financial-Times/thesaurus-mapping-extractor/mapping"
)

const (
	nameMappingsSuffix = "-name-mappings.txt"
	urlMappingsSuffix  = "-url-mappings.txt"
	tooLongSuffix      = "-url-toolong.txt"
)

// Writer produces the pipe-delimited mapping files for one output directory.
type Writer struct {
	dir string
}

func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating output directory %s", dir)
	}
	return &Writer{dir: dir}, nil
}

// WriteNameMappings writes codes|displayName records to {name}-name-mappings.txt.
func (w *Writer) WriteNameMappings(name string, entries []*mapping.Mapping) (string, error) {
	return w.write(name+nameMappingsSuffix, entries, func(m *mapping.Mapping) string {
		return m.DisplayName
	})
}

// WriteURLMappings writes codes|friendlyUrl records to {name}-url-mappings.txt.
func (w *Writer) WriteURLMappings(name string, entries []*mapping.Mapping) (string, error) {
	return w.write(name+urlMappingsSuffix, entries, friendlyURL)
}

// WriteTooLong writes the mappings rejected for URL length to {name}-url-toolong.txt.
func (w *Writer) WriteTooLong(name string, entries []*mapping.Mapping) (string, error) {
	return w.write(name+tooLongSuffix, entries, friendlyURL)
}

func friendlyURL(m *mapping.Mapping) string {
	return m.FriendlyURL
}

func (w *Writer) write(fileName string, entries []*mapping.Mapping, value func(*mapping.Mapping) string) (string, error) {
	path := filepath.Join(w.dir, fileName)
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "creating %s", path)
	}

	buf := bufio.NewWriter(f)
	for _, m := range entries {
		buf.WriteString(m.CodeList())
		buf.WriteByte('|')
		buf.WriteString(value(m))
		buf.WriteByte('\n')
	}

	if err := buf.Flush(); err != nil {
		f.Close()
		return "", errors.Wrapf(err, "writing %s", path)
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrapf(err, "closing %s", path)
	}
	return path, nil
}

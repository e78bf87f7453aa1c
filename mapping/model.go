package mapping

import "strings"

// Mapping is one published entry: every concept code sharing a display name.
type Mapping struct {
	Key         string
	DisplayName string
	Codes       []string
	FriendlyURL string
	IsMenuItem  bool
}

// CodeList is the comma separated form used in the output files.
func (m *Mapping) CodeList() string {
	return strings.Join(m.Codes, ",")
}

func (m *Mapping) hasCode(code string) bool {
	for _, c := range m.Codes {
		if c == code {
			return true
		}
	}
	return false
}

// Table holds mappings keyed by case-folded display name, in the order they were
// first created.
type Table struct {
	entries map[string]*Mapping
	order   []string
}

func NewTable() *Table {
	return &Table{entries: map[string]*Mapping{}}
}

func (t *Table) Get(key string) (*Mapping, bool) {
	m, ok := t.entries[key]
	return m, ok
}

func (t *Table) Len() int {
	return len(t.order)
}

func (t *Table) Entries() []*Mapping {
	out := make([]*Mapping, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.entries[k])
	}
	return out
}

func (t *Table) add(m *Mapping) {
	t.entries[m.Key] = m
	t.order = append(t.order, m.Key)
}

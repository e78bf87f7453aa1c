package evs

// ConceptLink is a reference to another thesaurus concept. Links are never
// resolved eagerly; the Store is used to turn one into a Concept.
type ConceptLink struct {
	Code  string `json:"code"`
	Label string `json:"label,omitempty"`
}

type Synonym struct {
	Name          string `json:"termName"`
	Group         string `json:"termGroup,omitempty"`
	Source        string `json:"termSource,omitempty"`
	SourceCode    string `json:"sourceCode,omitempty"`
	SubsourceName string `json:"subsourceName,omitempty"`
}

// Concept is a single NCI Thesaurus entry as returned by the CTRP concept endpoint.
type Concept struct {
	Code           string        `json:"code"`
	Label          string        `json:"label,omitempty"`
	PreferredName  string        `json:"preferredName,omitempty"`
	DisplayName    string        `json:"displayName,omitempty"`
	IsDisease      bool          `json:"isDisease,omitempty"`
	IsDiseaseStage bool          `json:"isDiseaseStage,omitempty"`
	IsDiseaseGrade bool          `json:"isDiseaseGrade,omitempty"`
	IsMainType     bool          `json:"isMainType,omitempty"`
	IsSubtype      bool          `json:"isSubtype,omitempty"`
	SemanticTypes  []string      `json:"semanticTypes,omitempty"`
	SubConcepts    []ConceptLink `json:"subconcepts,omitempty"`
	SuperConcepts  []ConceptLink `json:"superconcepts,omitempty"`
	Synonyms       []Synonym     `json:"synonyms,omitempty"`
}

// FilteredSynonyms returns the synonyms from the given source and term group, in
// the order the service listed them.
func (c *Concept) FilteredSynonyms(source string, group string) []Synonym {
	var matched []Synonym
	for _, s := range c.Synonyms {
		if s.Source == source && s.Group == group {
			matched = append(matched, s)
		}
	}
	return matched
}

func (c *Concept) String() string {
	return "(" + c.Code + ") " + c.PreferredName
}

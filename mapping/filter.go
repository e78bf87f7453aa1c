package mapping

const DefaultMaxURLLength = 75

// DefaultDenylist holds glossary record ids whose entries are known to produce
// misleading pages.
var DefaultDenylist = map[string]bool{
	"44404":  true,
	"377721": true,
	"423251": true,
	"635470": true,
	"653110": true,
	"757144": true,
	"44971":  true,
	"46221":  true,
	"643063": true,
	"721308": true,
	"39298":  true,
	"476335": true,
	"531923": true,
}

// Filter routes mappings out of the published set before validation.
type Filter struct {
	MaxURLLength int
	Denylist     map[string]bool
}

// Apply strips denylisted codes, dropping mappings left with none, and splits off
// mappings whose URL is longer than MaxURLLength. A zero MaxURLLength disables the
// length check.
func (f Filter) Apply(entries []*Mapping) (accepted, tooLong []*Mapping) {
	for _, m := range entries {
		codes := f.allowedCodes(m.Codes)
		if len(codes) == 0 {
			continue
		}
		if len(codes) != len(m.Codes) {
			cp := *m
			cp.Codes = codes
			m = &cp
		}

		if f.MaxURLLength > 0 && len(m.FriendlyURL) > f.MaxURLLength {
			tooLong = append(tooLong, m)
			continue
		}
		accepted = append(accepted, m)
	}
	return accepted, tooLong
}

func (f Filter) allowedCodes(codes []string) []string {
	if len(f.Denylist) == 0 {
		return codes
	}
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if !f.Denylist[c] {
			out = append(out, c)
		}
	}
	return out
}

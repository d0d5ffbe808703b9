package models

// ThemeProfile is one entry of the static subject taxonomy.
type ThemeProfile struct {
	Name   string
	High   []string
	Medium []string
	Low    []string
}

// ThemeAnalysis is derived from a class corpus on every request and never
// persisted.
type ThemeAnalysis struct {
	RankedThemes    []string
	Scores          map[string]int
	MatchedKeywords []string
	Confidence      float64
}

// TopTheme returns the best scoring theme or "" when nothing matched.
func (a ThemeAnalysis) TopTheme() string {
	if len(a.RankedThemes) == 0 {
		return ""
	}
	return a.RankedThemes[0]
}

type PersonaProfile struct {
	Specialization    string
	Methodologies     []string
	ExampleReferences []string
	Focus             string
	Tone              string
}

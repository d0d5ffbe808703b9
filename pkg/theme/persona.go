package theme

import (
	"bytes"
	"strings"
	"text/template"

	"github.com/xhad/tutor/internal/models"
)

const groundingItems = 3

var personaTemplate = template.Must(template.New("persona").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(`Eres un tutor especialista en {{.Persona.Specialization}}{{if .ClassName}} para la clase "{{.ClassName}}"{{end}}.
Metodologías que aplicas:
{{range .Persona.Methodologies}}- {{.}}
{{end}}{{with .Persona.ExampleReferences}}Referencias que puedes mencionar: {{join . "; "}}.
{{end}}Enfoque: {{.Persona.Focus}}.
Tono: {{.Persona.Tone}}.
{{with .Themes}}Temas detectados en el material: {{join . ", "}}.
{{end}}{{with .Keywords}}Conceptos clave del material: {{join . ", "}}.
{{end}}`))

type personaData struct {
	Persona   models.PersonaProfile
	ClassName string
	Themes    []string
	Keywords  []string
}

// Synthesize renders the persona fragment of the system prompt. It is
// deterministic for a given analysis and class name.
func (a *Analyzer) Synthesize(analysis models.ThemeAnalysis, className string) string {
	data := personaData{
		Persona:   a.Persona(analysis),
		ClassName: strings.TrimSpace(className),
		Themes:    firstN(analysis.RankedThemes, groundingItems),
		Keywords:  firstN(analysis.MatchedKeywords, groundingItems),
	}

	var buf bytes.Buffer
	// The template only reads plain fields, so Execute cannot fail here.
	_ = personaTemplate.Execute(&buf, data)
	return buf.String()
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

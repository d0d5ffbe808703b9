package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"math/rand"
	"sync"
	texttemplate "text/template"
)

const KindInactivity = "inactivity"

// Selector picks one of n templates.
type Selector interface {
	Pick(n int) int
}

// RandomSelector is a Selector backed by a seeded math/rand source.
type RandomSelector struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRandomSelector(seed int64) *RandomSelector {
	return &RandomSelector{rnd: rand.New(rand.NewSource(seed))}
}

func (s *RandomSelector) Pick(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Intn(n)
}

// FixedSelector always picks the same index (modulo n).
type FixedSelector int

func (f FixedSelector) Pick(n int) int { return int(f) % n }

// Subjects are plain text; bodies are HTML and escaped accordingly.
type emailTemplate struct {
	subject *texttemplate.Template
	body    *template.Template
}

// TemplateData is interpolated into subjects and bodies.
type TemplateData struct {
	Name         string
	DaysInactive int
	AppURL       string
}

var inactivityTemplates = []emailTemplate{
	{
		subject: texttemplate.Must(texttemplate.New("subject").Parse("¡Te extrañamos, {{.Name}}!")),
		body: template.Must(template.New("inactivity-0").Parse(
			`<p>Hola {{.Name}},</p>
<p>Han pasado {{.DaysInactive}} días desde tu última visita. Tus clases siguen ahí, listas para cuando quieras continuar.</p>
<p><a href="{{.AppURL}}">Volver a estudiar</a></p>`)),
	},
	{
		subject: texttemplate.Must(texttemplate.New("subject").Parse("{{.Name}}, un pequeño paso hoy cuenta")),
		body: template.Must(template.New("inactivity-1").Parse(
			`<p>Hola {{.Name}},</p>
<p>Aprender es constante, no perfecto. Dedica diez minutos hoy a repasar tu material y pregúntale al asistente lo que no te quede claro.</p>
<p><a href="{{.AppURL}}">Retomar mis clases</a></p>`)),
	},
	{
		subject: texttemplate.Must(texttemplate.New("subject").Parse("Tu material de estudio te espera")),
		body: template.Must(template.New("inactivity-2").Parse(
			`<p>Hola {{.Name}},</p>
<p>Llevas {{.DaysInactive}} días sin entrar. Cada pregunta que haces te acerca a dominar el tema.</p>
<p><a href="{{.AppURL}}">Hacer una pregunta</a></p>`)),
	},
}

// Renderer turns a notification kind into a Payload.
type Renderer struct {
	selector  Selector
	templates map[string][]emailTemplate
}

func NewRenderer(selector Selector) *Renderer {
	return &Renderer{
		selector:  selector,
		templates: map[string][]emailTemplate{KindInactivity: inactivityTemplates},
	}
}

func (r *Renderer) Render(kind string, data TemplateData) (Payload, error) {
	set := r.templates[kind]
	if len(set) == 0 {
		return Payload{}, fmt.Errorf("no templates for notification kind %q", kind)
	}
	tpl := set[r.selector.Pick(len(set))]

	var sb, hb bytes.Buffer
	if err := tpl.subject.Execute(&sb, data); err != nil {
		return Payload{}, fmt.Errorf("failed to render subject: %w", err)
	}
	if err := tpl.body.Execute(&hb, data); err != nil {
		return Payload{}, fmt.Errorf("failed to render body: %w", err)
	}
	return Payload{Subject: sb.String(), HTML: hb.String()}, nil
}

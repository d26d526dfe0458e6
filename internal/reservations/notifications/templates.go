package notifications

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"
)

var subjects = map[string]string{
	EventReservationConfirmed: "Your reservation on {{.Date}} at {{.StartTime}} is confirmed",
	EventReviewRequested:      "How was your visit on {{.Date}}?",
}

var bodies = map[string]string{
	EventReservationConfirmed: `Hello {{.CustomerName}},

Your reservation is confirmed for {{.Date}} from {{.StartTime}} to {{.EndTime}} ({{.TimeZone}}).
Price: {{.Price}}

Reservation: {{.ReservationID}}
{{- if .CancelToken}}
To cancel, use this code: {{.CancelToken}}
{{- end}}
`,
	EventReviewRequested: `Hello {{.CustomerName}},

Thanks for visiting us on {{.Date}}. We would love to hear how it went.

Review code: {{.ReviewToken}}
`,
}

// Renderer turns events into mails.
type Renderer struct {
	subjects map[string]*template.Template
	bodies   map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		subjects: make(map[string]*template.Template, len(subjects)),
		bodies:   make(map[string]*template.Template, len(bodies)),
	}
	for eventType, text := range subjects {
		t, err := template.New(eventType + ".subject").Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s subject: %w", eventType, err)
		}
		r.subjects[eventType] = t
	}
	for eventType, text := range bodies {
		t, err := template.New(eventType + ".body").Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s body: %w", eventType, err)
		}
		r.bodies[eventType] = t
	}
	return r, nil
}

var ErrUnknownEvent = errors.New("unknown notification event")

func (r *Renderer) Render(e Event) (Mail, error) {
	subjectTmpl, ok := r.subjects[e.Type]
	if !ok {
		return Mail{}, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Type)
	}

	var subject, body bytes.Buffer
	if err := subjectTmpl.Execute(&subject, e); err != nil {
		return Mail{}, fmt.Errorf("failed to render subject: %w", err)
	}
	if err := r.bodies[e.Type].Execute(&body, e); err != nil {
		return Mail{}, fmt.Errorf("failed to render body: %w", err)
	}

	return Mail{To: e.CustomerEmail, Subject: subject.String(), Body: body.String()}, nil
}

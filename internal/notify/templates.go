package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

var templates = template.Must(template.New("notify").Parse(`
{{define "candidate_request"}}<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Reference Check Request</h2>
  <p>Hi {{.CandidateName}},</p>
  <p>{{.Company}} has requested reference checks for your application for the <strong>{{.Position}}</strong> position.</p>
  <p>Please add 2-5 professional references. We'll email each of them to schedule a short phone interview.</p>
  <p><a href="{{.Link}}">Add your references</a></p>
  <p style="color: #666;">This link expires in {{.ExpiresDays}} days.</p>
</div>{{end}}

{{define "reference_invitation"}}<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Reference Request for {{.CandidateName}}</h2>
  <p>Hi {{.ReferenceName}},</p>
  <p>{{.CandidateName}} listed you as a reference for the <strong>{{.Position}}</strong> position at {{.Company}}.</p>
  <p>Pick a time for a 10-15 minute automated phone interview:</p>
  <p><a href="{{.Link}}">Schedule your call</a></p>
  <p style="color: #666;">This link expires in {{.ExpiresDays}} days.</p>
</div>{{end}}

{{define "call_completed"}}<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Reference Check Completed</h2>
  <p><strong>Candidate:</strong> {{.CandidateName}}</p>
  <p><strong>Reference:</strong> {{.ReferenceName}}</p>
  <p><strong>Phone:</strong> {{.Phone}}</p>
  <p><strong>Duration:</strong> {{.DurationMinutes}} minutes</p>
  <h3>Transcript:</h3>
  <div style="background: #f5f5f5; padding: 20px; border-radius: 8px; white-space: pre-wrap;">{{.Transcript}}</div>
</div>{{end}}
`))

type CandidateRequest struct {
	CandidateName  string
	CandidateEmail string
	Company        string
	Position       string
	Link           string
	ExpiresDays    int
}

type ReferenceInvitation struct {
	ReferenceName  string
	ReferenceEmail string
	CandidateName  string
	Company        string
	Position       string
	Link           string
	ExpiresDays    int
}

type CallCompleted struct {
	CandidateName   string
	ReferenceName   string
	Phone           string
	DurationMinutes int
	Transcript      string
}

// Template names, also used as metric labels.
const (
	TemplateCandidateRequest    = "candidate_request"
	TemplateReferenceInvitation = "reference_invitation"
	TemplateCallCompleted       = "call_completed"
)

func (d CandidateRequest) Message(from string) (Message, error) {
	html, err := render(TemplateCandidateRequest, d)
	if err != nil {
		return Message{}, err
	}
	return Message{
		From:    from,
		To:      d.CandidateEmail,
		Subject: fmt.Sprintf("Reference Check for %s at %s", d.Position, d.Company),
		HTML:    html,
	}, nil
}

func (d ReferenceInvitation) Message(from string) (Message, error) {
	html, err := render(TemplateReferenceInvitation, d)
	if err != nil {
		return Message{}, err
	}
	return Message{
		From:    from,
		To:      d.ReferenceEmail,
		Subject: fmt.Sprintf("Reference Request for %s", d.CandidateName),
		HTML:    html,
	}, nil
}

// Message addresses the completion notice to the configured recipient.
func (d CallCompleted) Message(from, to string) (Message, error) {
	html, err := render(TemplateCallCompleted, d)
	if err != nil {
		return Message{}, err
	}
	return Message{
		From:    from,
		To:      to,
		Subject: fmt.Sprintf("Reference Check Completed - %s", d.ReferenceName),
		HTML:    html,
	}, nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("notify: render %s: %w", name, err)
	}
	return buf.String(), nil
}

package mail

import (
	"html/template"
	"strings"
)

// SignupParams is passed as data when executing the signup email template.
type SignupParams struct {
	Email    string
	SiteName string

	// Data may hold custom data for overridden templates.
	Data map[string]any
}

// DefaultSignupSubject is the subject of the signup notification.
const DefaultSignupSubject = "Signup succeeded!"

// DefaultSignupTemplate is the default body of the signup notification.
const DefaultSignupTemplate = `<h1>Welcome to {{.SiteName}}!</h1>

<p>Hi {{.Email}},</p>

<p>Your signup succeeded. You can log in and start shopping right away.</p>

<p>Regards,<br>
{{.SiteName}}</p>
`

// SignupBody renders the signup notification body using tmpl, falling back
// to DefaultSignupTemplate if tmpl is empty.
func SignupBody(tmpl string, params SignupParams) (string, error) {
	if tmpl == "" {
		tmpl = DefaultSignupTemplate
	}
	t, err := template.New("signup").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := t.Execute(&b, params); err != nil {
		return "", err
	}
	return b.String(), nil
}

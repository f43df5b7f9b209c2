package messaging

import (
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

// Body carries both renderings of a message.
type Body struct {
	Text string
	HTML string
}

const (
	SubjectRegistration = "Finish your registration"
	SubjectLogin        = "Link to login to Alumni Network"
)

type linkData struct {
	Name    string
	AuthURL string
}

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.New("").Parse(`
{{define "register_member"}}<p>Hi {{.Name}},</p>
<p>Thanks for joining the New Theatre Alumni Network. Follow the link below to finish your registration.</p>
<p><a href="{{.AuthURL}}">Finish registration</a></p>
<p>If you did not sign up you can ignore this email.</p>{{end}}
{{define "login"}}<p>Hi {{.Name}},</p>
<p>Use the link below to log in to the New Theatre Alumni Network.</p>
<p><a href="{{.AuthURL}}">Log in</a></p>
<p>If you did not ask to log in you can ignore this email.</p>{{end}}
`))

	textTemplates = texttemplate.Must(texttemplate.New("").Parse(`
{{define "register_member"}}Hi {{.Name}},

Thanks for joining the New Theatre Alumni Network. Follow the link below to finish your registration.

{{.AuthURL}}

If you did not sign up you can ignore this email.{{end}}
{{define "login"}}Hi {{.Name}},

Use the link below to log in to the New Theatre Alumni Network.

{{.AuthURL}}

If you did not ask to log in you can ignore this email.{{end}}
`))
)

func render(name string, data linkData) (Body, error) {
	var text, html strings.Builder
	if err := textTemplates.ExecuteTemplate(&text, name, data); err != nil {
		return Body{}, err
	}
	if err := htmlTemplates.ExecuteTemplate(&html, name, data); err != nil {
		return Body{}, err
	}
	return Body{Text: strings.TrimSpace(text.String()), HTML: html.String()}, nil
}

// RenderRegistration is sent after a member registers.
func RenderRegistration(name, authURL string) (Body, error) {
	return render("register_member", linkData{Name: name, AuthURL: authURL})
}

// RenderLogin is sent when a member asks for a login link.
func RenderLogin(name, authURL string) (Body, error) {
	return render("login", linkData{Name: name, AuthURL: authURL})
}

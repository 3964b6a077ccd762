// Package mail builds and delivers transactional email.
package mail

import (
	"context"
	"fmt"
	"html/template"
	"strings"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var (
	verifyTemplate = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Email verification</h2>
    <p>Hi {{.Name}},</p>
    <p>Confirm your email address by opening the link below. It expires in {{.Horizon}}.</p>
    <p><a href="{{.URL}}">{{.URL}}</a></p>
  </div>
</body>
</html>`))

	resetTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif;">
  <div style="max-width: 520px; margin: 0 auto; padding: 16px;">
    <h2>Password reset</h2>
    <p>Hi {{.Name}},</p>
    <p>Somebody asked to reset the password of your account. If it was you, open the link below within {{.Horizon}}.</p>
    <p><a href="{{.URL}}">{{.URL}}</a></p>
    <p>If it was not you, ignore this email.</p>
  </div>
</body>
</html>`))
)

type linkData struct {
	Name    string
	URL     string
	Horizon string
}

// VerificationMessage renders the email-verification mail.
func VerificationMessage(to, name, url, horizon string) (Message, error) {
	return render(verifyTemplate, to, "Email verification", linkData{Name: name, URL: url, Horizon: horizon})
}

// ResetMessage renders the password-reset mail.
func ResetMessage(to, name, url, horizon string) (Message, error) {
	return render(resetTemplate, to, "Password reset", linkData{Name: name, URL: url, Horizon: horizon})
}

func render(tmpl *template.Template, to, subject string, data linkData) (Message, error) {
	var body strings.Builder
	if err := tmpl.Execute(&body, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return Message{To: to, Subject: subject, HTML: body.String()}, nil
}

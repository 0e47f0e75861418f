package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
)

// Sender delivers verification mail.
type Sender interface {
	SendVerification(ctx context.Context, to, username, link string) error
}

const verificationSubject = "Verify your waifugen email"

var verificationTemplate = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <p>Hello {{.Username}},</p>
    <p>Please verify your email address to start creating.</p>
    <p><a href="{{.Link}}">Verify Email</a></p>
    <p>The link expires in 24 hours. If you did not sign up, ignore this email.</p>
</body>
</html>
`))

// VerificationLink builds <baseURL>/verify-email?token=<token>.
func VerificationLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/verify-email?token=" + token
}

func renderVerification(username, link string) (string, error) {
	var body bytes.Buffer
	if err := verificationTemplate.Execute(&body, map[string]string{"Username": username, "Link": link}); err != nil {
		return "", fmt.Errorf("render verification mail: %w", err)
	}
	return body.String(), nil
}

// LogSender writes the mail to the log instead of sending it. Used when no
// SMTP host is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) SendVerification(_ context.Context, to, username, link string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("verification mail not sent; smtp disabled", "to", to, "username", username, "link", link)
	return nil
}

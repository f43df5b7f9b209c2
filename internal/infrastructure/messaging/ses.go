package messaging

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

const charset = "UTF-8"

// SESAPI is the subset of the SES v2 client used by SESMailer.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

var _ SESAPI = (*sesv2.Client)(nil)

// SESMailer delivers email through Amazon SES.
type SESMailer struct {
	client  SESAPI
	sender  string
	timeout time.Duration
	logger  *zap.Logger
}

func NewSESMailer(client SESAPI, sender string, timeout time.Duration, logger *zap.Logger) (*SESMailer, error) {
	if client == nil {
		return nil, errors.New("SES client is required")
	}
	if _, err := mail.ParseAddress(sender); err != nil {
		return nil, appErrors.NewValidation("invalid sender address: " + err.Error())
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SESMailer{client: client, sender: sender, timeout: timeout, logger: logger.Named("mailer")}, nil
}

func (m *SESMailer) Send(ctx context.Context, email Email) error {
	if len(email.To) == 0 {
		return appErrors.NewValidation("email has no recipients")
	}
	to := make([]string, len(email.To))
	for i, a := range email.To {
		to[i] = a.String()
	}

	body := &types.Body{Text: content(email.Body.Text)}
	if email.Body.HTML != "" {
		body.Html = content(email.Body.HTML)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	out, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.sender),
		Destination:      &types.Destination{ToAddresses: to},
		Content: &types.EmailContent{Simple: &types.Message{
			Subject: content(email.Subject),
			Body:    body,
		}},
	})
	if err != nil {
		err = m.translate(err)
		m.logger.Error("Failed to send email", zap.Strings("to", maskAll(email.To)), zap.Error(err))
		return err
	}

	m.logger.Info("Email sent",
		zap.String("message_id", aws.ToString(out.MessageId)),
		zap.String("subject", email.Subject),
		zap.Strings("to", maskAll(email.To)))
	return nil
}

// translate separates addresses SES will not send to from delivery
// failures a later attempt may get past.
func (m *SESMailer) translate(err error) error {
	var (
		rejected       *types.MessageRejected
		domainUnverify *types.MailFromDomainNotVerifiedException
	)
	switch {
	case errors.As(err, &domainUnverify):
		return appErrors.NewEmailUnverified("Sender domain not verified", err)
	case errors.As(err, &rejected) && strings.Contains(strings.ToLower(rejected.ErrorMessage()), "not verified"):
		return appErrors.NewEmailUnverified("Email address not verified", err)
	case errors.As(err, &rejected):
		return appErrors.NewInternal("email rejected", err)
	default:
		return appErrors.NewUnavailable("send email", err)
	}
}

func content(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String(charset)}
}

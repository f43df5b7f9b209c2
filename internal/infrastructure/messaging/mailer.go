package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/mail"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"github.com/newtheatre/lumina/internal/domain"
	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

// DetailTypeEmailRequested marks email requests on the bus. A downstream
// consumer owns delivery.
const DetailTypeEmailRequested = "EmailRequested"

// Email is a rendered message ready to send.
type Email struct {
	To      []mail.Address
	Subject string
	Body    Body
}

// Mailer sends email.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

type emailDetail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html"`
}

// EventMailer hands email to EventBridge as an EmailRequested event.
type EventMailer struct {
	client  EventBridgeAPI
	bus     string
	source  string
	sender  string
	timeout time.Duration
	logger  *zap.Logger
}

func NewEventMailer(client EventBridgeAPI, bus, source, sender string, timeout time.Duration, logger *zap.Logger) (*EventMailer, error) {
	if _, err := mail.ParseAddress(sender); err != nil {
		return nil, appErrors.NewValidation("invalid sender address: " + err.Error())
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EventMailer{
		client:  client,
		bus:     bus,
		source:  source,
		sender:  sender,
		timeout: timeout,
		logger:  logger.Named("mailer"),
	}, nil
}

func (m *EventMailer) Send(ctx context.Context, email Email) error {
	if len(email.To) == 0 {
		return appErrors.NewValidation("email has no recipients")
	}
	to := make([]string, len(email.To))
	for i, a := range email.To {
		to[i] = a.String()
	}
	detail, err := json.Marshal(emailDetail{
		From:    m.sender,
		To:      to,
		Subject: email.Subject,
		Text:    email.Body.Text,
		HTML:    email.Body.HTML,
	})
	if err != nil {
		return appErrors.NewInternal("marshal email", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	out, err := m.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: []types.PutEventsRequestEntry{{
		EventBusName: aws.String(m.bus),
		Source:       aws.String(m.source),
		DetailType:   aws.String(DetailTypeEmailRequested),
		Detail:       aws.String(string(detail)),
	}}})
	if err != nil {
		return appErrors.NewUnavailable("request email", err)
	}
	if out.FailedEntryCount > 0 {
		code := ""
		if len(out.Entries) > 0 {
			code = aws.ToString(out.Entries[0].ErrorCode)
		}
		return appErrors.NewUnavailable("email request rejected", errors.New(code))
	}

	m.logger.Info("Email requested", zap.String("subject", email.Subject), zap.Strings("to", maskAll(email.To)))
	return nil
}

// LogMailer logs instead of sending. Development only; the body contains a
// live login link.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger.Named("mailer")}
}

func (m *LogMailer) Send(_ context.Context, email Email) error {
	m.logger.Info("Email",
		zap.Strings("to", maskAll(email.To)),
		zap.String("subject", email.Subject),
		zap.String("text", email.Body.Text))
	return nil
}

func maskAll(addrs []mail.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		masked, err := domain.MaskEmail(a.Address)
		if err != nil {
			masked = "***"
		}
		out[i] = masked
	}
	return out
}

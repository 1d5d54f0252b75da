package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"masjid/pkg/config"
	"masjid/pkg/logger"
)

const (
	ProviderSES  = "ses"
	ProviderNoop = "noop"

	charset = "UTF-8"
)

type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// sesAPI is the part of the SES client the mailer uses.
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// NewMailer picks the provider from configuration. Unknown providers fall
// back to the noop mailer.
func NewMailer(cfg *config.Config) Mailer {
	switch cfg.MailProvider {
	case ProviderSES:
		client := ses.NewFromConfig(aws.Config{
			Region: cfg.SESRegion,
			Credentials: aws.NewCredentialsCache(
				credentials.NewStaticCredentialsProvider(cfg.SESAccessKeyID, cfg.SESSecretAccessKey, ""),
			),
		})
		return newSESMailer(client, cfg.MailFromAddress, cfg.MailFromName, cfg.Log)
	case ProviderNoop:
	default:
		cfg.Log.Warn("Unknown mail provider, using noop", "provider", cfg.MailProvider)
	}
	return &noopMailer{log: cfg.Log}
}

type sesMailer struct {
	client      sesAPI
	fromAddress string
	fromName    string
	log         *logger.Logger
}

func newSESMailer(client sesAPI, fromAddress, fromName string, log *logger.Logger) *sesMailer {
	return &sesMailer{
		client:      client,
		fromAddress: fromAddress,
		fromName:    fromName,
		log:         log,
	}
}

func (m *sesMailer) Send(ctx context.Context, email Email) error {
	source := m.fromAddress
	if m.fromName != "" {
		source = fmt.Sprintf("%s <%s>", m.fromName, m.fromAddress)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(source),
		Destination: &types.Destination{
			ToAddresses: []string{email.To},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(email.Subject), Charset: aws.String(charset)},
			Body:    &types.Body{},
		},
	}
	if email.HTML != "" {
		input.Message.Body.Html = &types.Content{Data: aws.String(email.HTML), Charset: aws.String(charset)}
	}
	if email.Text != "" {
		input.Message.Body.Text = &types.Content{Data: aws.String(email.Text), Charset: aws.String(charset)}
	}

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email via SES: %w", err)
	}
	m.log.Info("Email sent", "provider", ProviderSES, "message_id", aws.ToString(result.MessageId))
	return nil
}

type noopMailer struct {
	log *logger.Logger
}

func (m *noopMailer) Send(ctx context.Context, email Email) error {
	m.log.Info("Email not sent (noop mailer)", "subject", email.Subject)
	return nil
}

package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"masjid/pkg/config"
	"masjid/pkg/logger"
	"masjid/pkg/model"
)

type capturingMailer struct {
	sent []Email
	err  error
}

func (m *capturingMailer) Send(ctx context.Context, email Email) error {
	m.sent = append(m.sent, email)
	return m.err
}

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func testConfig() *config.Config {
	return &config.Config{Log: logger.Discard(), MailFromName: "Masjid Iftar Team", MailProvider: ProviderNoop}
}

func TestNotifier_SponsorshipConfirmed(t *testing.T) {
	mailer := &capturingMailer{}
	n := NewNotifier(mailer, testConfig())
	name := "The Rahman family"
	date := &model.BookableDate{ID: "d1", Date: "2025-03-01", SponsorName: &name, Notes: "Dates and water provided"}

	require.NoError(t, n.SponsorshipConfirmed(context.Background(), date, "rahman@example.org"))
	require.Len(t, mailer.sent, 1)

	msg := mailer.sent[0]
	assert.Equal(t, "rahman@example.org", msg.To)
	assert.Equal(t, "Your iftar sponsorship for Saturday, 1 March 2025 is confirmed", msg.Subject)
	assert.Contains(t, msg.Text, "Assalamu alaikum The Rahman family")
	assert.Contains(t, msg.Text, "Dates and water provided")
	assert.Contains(t, msg.HTML, "<strong>Saturday, 1 March 2025</strong>")
	assert.Contains(t, msg.HTML, "Masjid Iftar Team")
}

func TestNotifier_EscapesSponsorNameInHTML(t *testing.T) {
	mailer := &capturingMailer{}
	n := NewNotifier(mailer, testConfig())
	name := "<script>x</script>"

	require.NoError(t, n.SponsorshipConfirmed(context.Background(), &model.BookableDate{Date: "2025-03-02", SponsorName: &name}, "a@example.org"))
	assert.False(t, strings.Contains(mailer.sent[0].HTML, "<script>"))
}

func TestNotifier_PropagatesMailerError(t *testing.T) {
	n := NewNotifier(&capturingMailer{err: errors.New("throttled")}, testConfig())

	err := n.SponsorshipConfirmed(context.Background(), &model.BookableDate{Date: "2025-03-02"}, "a@example.org")
	assert.Error(t, err)
}

func TestNotifier_RejectsBadDate(t *testing.T) {
	mailer := &capturingMailer{}
	n := NewNotifier(mailer, testConfig())

	err := n.SponsorshipConfirmed(context.Background(), &model.BookableDate{Date: "soon"}, "a@example.org")
	assert.Error(t, err)
	assert.Empty(t, mailer.sent)
}

func TestSESMailer_Send(t *testing.T) {
	client := &fakeSES{}
	m := newSESMailer(client, "iftar@masjid.org", "Masjid", logger.Discard())

	require.NoError(t, m.Send(context.Background(), Email{To: "a@example.org", Subject: "Hi", Text: "body"}))
	assert.Equal(t, "Masjid <iftar@masjid.org>", aws.ToString(client.input.Source))
	assert.Equal(t, []string{"a@example.org"}, client.input.Destination.ToAddresses)
	assert.Nil(t, client.input.Message.Body.Html)
	assert.Equal(t, "body", aws.ToString(client.input.Message.Body.Text.Data))

	client.err = errors.New("boom")
	assert.Error(t, m.Send(context.Background(), Email{To: "a@example.org"}))
}

func TestNewMailer_UnknownProviderIsNoop(t *testing.T) {
	cfg := testConfig()
	cfg.MailProvider = "pigeon"

	_, ok := NewMailer(cfg).(*noopMailer)
	assert.True(t, ok)
}

package notify

import (
	"context"
	"fmt"
	"time"

	"masjid/pkg/config"
	"masjid/pkg/model"
)

const templateSponsorshipConfirmed = "sponsorship_confirmed"

type confirmationData struct {
	SponsorName string
	Weekday     string
	DisplayDate string
	Notes       string
	FromName    string
}

// Notifier sends sponsor-facing e-mails.
type Notifier struct {
	mailer Mailer
	cfg    *config.Config
}

func NewNotifier(mailer Mailer, cfg *config.Config) *Notifier {
	return &Notifier{mailer: mailer, cfg: cfg}
}

func (n *Notifier) SponsorshipConfirmed(ctx context.Context, date *model.BookableDate, email string) error {
	day, err := time.Parse(model.DateLayout, date.Date)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", date.Date, err)
	}

	data := confirmationData{
		SponsorName: "friend",
		Weekday:     day.Weekday().String(),
		DisplayDate: day.Format("2 January 2006"),
		Notes:       date.Notes,
		FromName:    n.cfg.MailFromName,
	}
	if date.SponsorName != nil && *date.SponsorName != "" {
		data.SponsorName = *date.SponsorName
	}

	msg, err := render(templateSponsorshipConfirmed, data)
	if err != nil {
		return err
	}
	msg.To = email

	if err := n.mailer.Send(ctx, msg); err != nil {
		return err
	}
	n.cfg.Log.Info("Sponsorship confirmation sent", "date_id", date.ID, "date", date.Date)
	return nil
}

package remind

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// Sender delivers one reminder message to one phone number.
type Sender interface {
	Send(ctx context.Context, to string, body string) error
}

// TwilioSender delivers reminders over the Twilio WhatsApp channel.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
	log    *zap.SugaredLogger
}

func NewTwilioSender(accountSID, authToken, from string, logger *zap.SugaredLogger) *TwilioSender {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &TwilioSender{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		from: from,
		log:  logger,
	}
}

func (s *TwilioSender) Send(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo("whatsapp:" + to)
	params.SetFrom("whatsapp:" + s.from)
	params.SetBody(body)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("send reminder to %s: %w", to, err)
	}
	if resp.Sid != nil {
		s.log.Infow("reminder sent", "to", to, "sid", *resp.Sid)
	} else {
		s.log.Warnw("reminder sent without sid", "to", to)
	}
	return nil
}

// LogSender only logs the message. Used in dev/demo mode where no Twilio
// credentials are configured.
type LogSender struct {
	log *zap.SugaredLogger
}

func NewLogSender(logger *zap.SugaredLogger) *LogSender {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LogSender{log: logger}
}

func (s *LogSender) Send(ctx context.Context, to string, body string) error {
	s.log.Infow("reminder (dry run)", "to", to, "body", body)
	return nil
}

// WhatsAppLink builds a wa.me deep link so the shopkeeper can send the
// reminder manually from their own phone.
func WhatsAppLink(phone string, body string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)
	return "https://wa.me/" + digits + "?text=" + url.QueryEscape(body)
}

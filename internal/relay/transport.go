package relay

import (
	"context"
	"fmt"
	"log"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Transport carries text to an address on the out-of-band channel. Bodies must
// arrive unmodified.
type Transport interface {
	Send(ctx context.Context, to, body string) error
}

// TwilioTransport sends SMS through the Twilio Messages API.
type TwilioTransport struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioTransport(accountSID, authToken, from string) *TwilioTransport {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioTransport{client: client, from: from}
}

func (t *TwilioTransport) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(body)

	msg, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	if msg.Sid != nil {
		log.Printf("sms queued: to=%s sid=%s", to, *msg.Sid)
	}
	return nil
}

// LogTransport writes messages to the log instead of sending them. Used when
// no SMS provider is configured.
type LogTransport struct{}

func (LogTransport) Send(ctx context.Context, to, body string) error {
	log.Printf("sms (not sent): to=%s chars=%d", to, len(body))
	return nil
}

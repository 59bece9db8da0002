/******************************************************************************
 *
 *  Description :
 *
 *    SMS carrier integration. Outbound messages are handed to Twilio after
 *    they are persisted; inbound webhook requests are checked against the
 *    X-Twilio-Signature header when signature validation is enabled.
 *
 *****************************************************************************/

package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	twapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/teamchat/inbox/server/logs"
)

type providerConfig struct {
	AccountSid string `json:"account_sid"`
	AuthToken  string `json:"auth_token"`
	// Externally visible URL of the SMS webhook, used to recompute the
	// request signature. Signature validation is off when empty.
	WebhookURL string `json:"webhook_url,omitempty"`
}

// SMSProvider is a thin wrapper around the Twilio REST client.
type SMSProvider struct {
	client    *twilio.RestClient
	validator twclient.RequestValidator

	webhookURL string
}

// newSMSProvider creates the carrier client. Returns nil without error if
// the provider section is absent from the config: the server then runs
// without a carrier, messages are persisted and fanned out only.
func newSMSProvider(jsonconf json.RawMessage) (*SMSProvider, error) {
	if len(jsonconf) == 0 {
		return nil, nil
	}

	var config providerConfig
	if err := json.Unmarshal(jsonconf, &config); err != nil {
		return nil, errors.New("provider: failed to parse config: " + err.Error())
	}
	if config.AccountSid == "" || config.AuthToken == "" {
		return nil, errors.New("provider: missing account_sid or auth_token")
	}

	p := &SMSProvider{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: config.AccountSid,
			Password: config.AuthToken,
		}),
		validator:  twclient.NewRequestValidator(config.AuthToken),
		webhookURL: config.WebhookURL,
	}

	return p, nil
}

// Send hands one outbound message to the carrier.
func (p *SMSProvider) Send(from, to, body string) error {
	params := &twapi.CreateMessageParams{}
	params.SetFrom(from)
	params.SetTo(to)
	params.SetBody(body)

	resp, err := p.client.Api.CreateMessage(params)
	if err != nil {
		return err
	}

	if resp.Sid != nil {
		logs.Info.Println("provider: message accepted by carrier, sid=", *resp.Sid)
	}
	return nil
}

// SignsWebhooks reports whether webhook signature validation is configured.
func (p *SMSProvider) SignsWebhooks() bool {
	return p.webhookURL != ""
}

// ValidateWebhook checks the provider signature of an inbound webhook
// request. Returns true when validation is not configured.
func (p *SMSProvider) ValidateWebhook(req *http.Request) bool {
	if p.webhookURL == "" {
		return true
	}

	params := make(map[string]string, len(req.PostForm))
	for key, vals := range req.PostForm {
		if len(vals) > 0 {
			params[key] = vals[0]
		}
	}

	return p.validator.Validate(p.webhookURL, params, req.Header.Get("X-Twilio-Signature"))
}

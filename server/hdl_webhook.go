/******************************************************************************
 *
 *  Description :
 *
 *    Handler of inbound SMS webhooks. The provider POSTs one
 *    form-encoded request per message; the reply status tells the
 *    provider whether to retry.
 *
 *****************************************************************************/

package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/teamchat/inbox/server/logs"
	"github.com/teamchat/inbox/server/store/types"
)

// serveWebhookSMS accepts a single inbound message from the SMS provider.
//
// 2xx replies acknowledge the message, including suppressed duplicates:
// the provider must not retry. 4xx replies reject it permanently: the
// payload is invalid or no chatroom is bound to the destination address.
// 5xx replies mean the message was not durably stored and a retry is
// expected; the duplicate suppression window makes the retry safe.
func serveWebhookSMS(wrt http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		wrt.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var from, to, body, providerId string
	if strings.HasPrefix(req.Header.Get("Content-Type"), "application/json") {
		// The provider signature covers form parameters only. JSON payloads
		// are for direct integrations which don't sign requests.
		if globals.provider != nil && globals.provider.SignsWebhooks() {
			wrt.WriteHeader(http.StatusForbidden)
			return
		}
		var payload struct {
			From       string `json:"from"`
			To         string `json:"to"`
			Body       string `json:"body"`
			ProviderId string `json:"message_sid"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			wrt.WriteHeader(http.StatusBadRequest)
			return
		}
		from, to, body, providerId = payload.From, payload.To, payload.Body, payload.ProviderId
	} else {
		if err := req.ParseForm(); err != nil {
			wrt.WriteHeader(http.StatusBadRequest)
			return
		}

		if globals.provider != nil && !globals.provider.ValidateWebhook(req) {
			logs.Warn.Println("webhook: invalid signature, ip=", req.RemoteAddr)
			wrt.WriteHeader(http.StatusForbidden)
			return
		}

		from = req.PostFormValue("From")
		to = req.PostFormValue("To")
		body = req.PostFormValue("Body")
		providerId = req.PostFormValue("MessageSid")
	}

	err := globals.router.InboundSMS(providerId, from, to, body)
	switch err {
	case nil:
		wrt.WriteHeader(http.StatusNoContent)
	case types.ErrMalformed:
		wrt.WriteHeader(http.StatusBadRequest)
	case types.ErrNotFound:
		// No chatroom is bound to the destination address. The message is
		// dropped, not queued; the 404 tells the operator which side is
		// misconfigured.
		logs.Warn.Println("webhook: no chatroom bound to address, dropping; to=", to)
		wrt.WriteHeader(http.StatusNotFound)
	default:
		logs.Err.Println("webhook: delivery failed", err)
		wrt.WriteHeader(http.StatusServiceUnavailable)
	}
}

/******************************************************************************
 *
 *  Description :
 *
 *    Routing of messages into chatrooms. Inbound messages arrive from the
 *    provider webhook, outbound messages from agent sessions or the REST
 *    API. The router validates the payload, resolves the destination
 *    chatroom, suppresses duplicates and hands the message to the room
 *    goroutine which persists and fans it out.
 *
 *****************************************************************************/

package main

import (
	"time"

	"github.com/teamchat/inbox/server/store/types"
	"github.com/teamchat/inbox/server/validate/tel"
)

// How long the webhook handler waits for the room to persist a message
// before telling the provider to retry.
const deliverAckTimeout = 10 * time.Second

// deliverReq is a single message on its way into a chatroom.
type deliverReq struct {
	// Routable name of the destination chatroom.
	rcptTo string
	// Name of the chatroom as the client named it; same as rcptTo for
	// messages which did not originate from a client.
	original string

	// types.DirInbound or types.DirOutbound.
	direction string
	// Sender address. Empty on outbound requests: the room fills in its
	// bound address.
	from string
	// Destination address. Empty on outbound requests means the remote
	// party of the latest inbound message.
	to      string
	channel string
	body    string

	timestamp time.Time

	// Synchronous requests: the room reports the result of the append
	// here. Buffered at 1.
	done chan error

	// Asynchronous requests from a live session: the room acknowledges
	// with a {ctrl} to the session instead.
	sess  *Session
	pktId string
}

// respond reports the result of the append to whoever is waiting for it.
func (req *deliverReq) respond(err error) {
	if req.done != nil {
		select {
		case req.done <- err:
		default:
		}
		return
	}

	if req.sess != nil {
		if err == nil {
			req.sess.queueOut(NoErrAccepted(req.pktId, req.original, req.timestamp))
		} else {
			req.sess.queueOut(decodeStoreError(err, req.pktId, req.original, req.timestamp))
		}
	}
}

// DeliveryRouter routes messages to chatrooms.
type DeliveryRouter struct {
	hub      *Hub
	resolver *AddressResolver
	dedup    *dedupCache
}

// NewDeliveryRouter wires the router to the hub.
func NewDeliveryRouter(hub *Hub, resolver *AddressResolver, dedup *dedupCache) *DeliveryRouter {
	statsRegisterInt("WebhookRequestsTotal")
	statsRegisterInt("WebhookRejectedTotal")

	return &DeliveryRouter{
		hub:      hub,
		resolver: resolver,
		dedup:    dedup,
	}
}

// InboundSMS processes a single message received from the provider webhook.
// Blocks until the message is durable, a duplicate is detected, or the
// timeout expires. The error is nil for both a persisted message and a
// suppressed duplicate: either way the provider must not retry.
func (rt *DeliveryRouter) InboundSMS(providerId, from, to, body string) error {
	statsInc("WebhookRequestsTotal", 1)

	if from == "" || to == "" || body == "" {
		statsInc("WebhookRejectedTotal", 1)
		return types.ErrMalformed
	}

	sender, err := tel.Normalize(from, rt.resolver.region)
	if err != nil {
		statsInc("WebhookRejectedTotal", 1)
		return types.ErrMalformed
	}

	chatroom, err := rt.resolver.Resolve(to)
	if err != nil {
		if err == types.ErrMalformed {
			statsInc("WebhookRejectedTotal", 1)
		}
		return err
	}
	if chatroom.IsZero() {
		// No chatroom is bound to the destination address. Drop, don't
		// auto-provision.
		statsInc("WebhookRejectedTotal", 1)
		return types.ErrNotFound
	}

	// The key is recorded before the append so a concurrent duplicate
	// cannot race past the check, and removed again if the append fails:
	// the provider retries on a 5xx and the retry must reach the store.
	key := dedupKey(providerId, sender, to, body)
	if rt.dedup.seenRecently(key) {
		statsInc("DuplicatesSuppressedTotal", 1)
		return nil
	}

	req := &deliverReq{
		rcptTo:    chatroom.String(),
		original:  chatroom.String(),
		direction: types.DirInbound,
		from:      sender,
		to:        to,
		channel:   "sms",
		body:      body,
		timestamp: types.TimeNow(),
		done:      make(chan error, 1),
	}

	rt.hub.deliver <- req

	select {
	case err := <-req.done:
		if err != nil {
			rt.dedup.forget(key)
		}
		return err
	case <-time.After(deliverAckTimeout):
		rt.dedup.forget(key)
		return types.ErrInternal
	}
}

// Send routes an outbound message from an attached session to its chatroom.
// The room acknowledges to the session once the message is durable.
func (rt *DeliveryRouter) Send(msg *ClientComMessage) error {
	to := msg.Pub.To
	if to != "" {
		var err error
		if to, err = tel.Normalize(to, rt.resolver.region); err != nil {
			return types.ErrMalformed
		}
	}

	rt.hub.deliver <- &deliverReq{
		rcptTo:    msg.RcptTo,
		original:  msg.Original,
		direction: types.DirOutbound,
		to:        to,
		channel:   "sms",
		body:      msg.Pub.Body,
		timestamp: msg.Timestamp,
		sess:      msg.sess,
		pktId:     msg.Id,
	}

	return nil
}

// SendBlocking routes an outbound message and waits for the append, used by
// the REST API. Returns nil once the message is durable.
func (rt *DeliveryRouter) SendBlocking(chatroom types.Uid, to, body string) error {
	if body == "" {
		return types.ErrMalformed
	}
	if to != "" {
		var err error
		if to, err = tel.Normalize(to, rt.resolver.region); err != nil {
			return types.ErrMalformed
		}
	}

	req := &deliverReq{
		rcptTo:    chatroom.String(),
		original:  chatroom.String(),
		direction: types.DirOutbound,
		to:        to,
		channel:   "sms",
		body:      body,
		timestamp: types.TimeNow(),
		done:      make(chan error, 1),
	}

	rt.hub.deliver <- req

	select {
	case err := <-req.done:
		return err
	case <-time.After(deliverAckTimeout):
		return types.ErrInternal
	}
}

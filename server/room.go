/******************************************************************************
 *
 *  Description :
 *
 *    A chatroom served by its own goroutine. The goroutine serializes all
 *    message appends, so messages within one chatroom get strictly
 *    increasing seq ids and every subscriber observes them in the same
 *    order. Rooms are loaded on demand and unloaded after a period of
 *    inactivity.
 *
 *****************************************************************************/

package main

import (
	"time"

	"github.com/teamchat/inbox/server/logs"
	"github.com/teamchat/inbox/server/store"
	"github.com/teamchat/inbox/server/store/types"
)

// Reasons why the room goroutine is terminated.
const (
	// StopShutdown: the room is being unloaded, it may be reloaded later.
	StopShutdown = iota
	// StopDeleted: the chatroom is deleted, evict subscribers.
	StopDeleted
)

// Unload the room after this period without subscribers or messages.
const idleRoomTimeout = time.Minute * 15

type roomShutDown struct {
	// Termination reason, one of Stop*.
	reason int
	// Channel to report completion. Could be nil.
	done chan<- bool
}

// Room is a chatroom served by a single goroutine.
type Room struct {
	// Routable name of the room, the base64 text form of the chatroom id.
	name string

	// Chatroom id.
	uid types.Uid
	// Human-readable name.
	roomName string
	// Bound external address.
	address string
	// Seq id of the last appended message.
	seq int
	// Creation timestamp of the chatroom record.
	created time.Time
	// Address of the remote party, taken from the latest inbound message.
	// Default destination of outbound messages.
	peer string

	// Sessions attached to the room.
	sessions map[*Session]struct{}

	// Subscribe requests, buffered = 256.
	reg chan *sessionJoin
	// Unsubscribe requests, buffered = 256.
	unreg chan *sessionLeave
	// Messages to append and fan out, buffered = 256.
	deliver chan *deliverReq
	// History and read-marker requests, buffered = 64.
	meta chan *metaReq
	// Request to terminate, buffered = 1.
	exit chan *roomShutDown
}

// roomInit loads the room's persistent state and starts the room goroutine.
// Requests queued on the room's channels while it was loading are handled
// by the goroutine in arrival order. On failure the queued requests are
// failed and the room is removed from the hub.
func roomInit(r *Room, h *Hub) {
	id := types.ParseUid(r.name)
	room, err := store.Chatrooms.Get(id)
	if err != nil {
		logs.Err.Println("room: failed to load", r.name, err)
		r.fail(h, types.ErrInternal)
		return
	}
	if room == nil {
		r.fail(h, types.ErrNotFound)
		return
	}

	r.uid = room.Id
	r.roomName = room.Name
	r.address = room.Address
	r.seq = room.SeqId
	r.created = room.CreatedAt

	// The latest inbound message names the remote party.
	if latest, err := store.Messages.GetAll(r.uid,
		&types.QueryOpt{Limit: 1, Direction: types.DirInbound}); err == nil && len(latest) > 0 {
		r.peer = latest[0].From
	}

	statsInc("LiveRooms", 1)
	statsInc("TotalRooms", 1)

	go r.run(h)
}

// fail rejects everything queued on the room's channels and unregisters the
// room.
func (r *Room) fail(h *Hub, reason types.StoreError) {
	h.roomDel(r.name)

	for {
		select {
		case join := <-r.reg:
			join.sess.queueOut(decodeStoreError(reason, join.pkt.Id, join.pkt.Original, join.pkt.Timestamp))
		case req := <-r.deliver:
			req.respond(reason)
		case meta := <-r.meta:
			meta.sess.queueOut(decodeStoreError(reason, meta.pkt.Id, meta.pkt.Original, meta.pkt.Timestamp))
		case <-r.unreg:
			// Nothing to do.
		default:
			return
		}
	}
}

func (r *Room) run(h *Hub) {
	killTimer := time.NewTimer(time.Hour)
	killTimer.Stop()

	for {
		select {
		case join := <-r.reg:
			killTimer.Stop()
			r.handleJoin(join)
			if len(r.sessions) == 0 {
				killTimer.Reset(idleRoomTimeout)
			}

		case leave := <-r.unreg:
			r.handleLeave(leave)
			if len(r.sessions) == 0 {
				killTimer.Reset(idleRoomTimeout)
			}

		case req := <-r.deliver:
			// Any traffic keeps the room loaded.
			if len(r.sessions) == 0 {
				killTimer.Reset(idleRoomTimeout)
			}
			r.handleDelivery(req)

		case meta := <-r.meta:
			switch meta.what {
			case metaGet:
				r.replyGetData(meta.sess, meta.pkt)
			case metaNote:
				r.handleNote(meta.sess, meta.pkt)
			}

		case <-killTimer.C:
			// The room is idle, ask the hub to unload it.
			h.unreg <- &roomUnreg{rcptTo: r.name}

		case sd := <-r.exit:
			if sd.reason == StopDeleted {
				now := types.TimeNow()
				for sess := range r.sessions {
					sess.detach <- r.name
					sess.queueOut(NoErrEvicted("", r.name, now))
				}
			} else {
				for sess := range r.sessions {
					sess.detach <- r.name
				}
			}

			statsInc("LiveRooms", -1)

			if sd.done != nil {
				sd.done <- true
			}
			return
		}
	}
}

// handleJoin checks access and attaches the session to the room.
func (r *Room) handleJoin(join *sessionJoin) {
	pkt := join.pkt
	sess := join.sess

	ok, err := globals.policy.CanAccess(sess.uid, r.uid)
	if err != nil {
		logs.Err.Println("room: access check failed", r.name, err)
		sess.queueOut(ErrUnknown(pkt.Id, pkt.Original, pkt.Timestamp))
		return
	}
	if !ok {
		sess.queueOut(ErrPermissionDenied(pkt.Id, pkt.Original, pkt.Timestamp))
		return
	}

	r.sessions[sess] = struct{}{}
	sess.addSub(r.name, &Subscription{
		done: r.unreg,
		meta: r.meta,
	})

	sess.queueOut(NoErrParams(pkt.Id, pkt.Original, pkt.Timestamp, map[string]interface{}{
		"seq": r.seq,
	}))

	// Describe the room to the new subscriber.
	sess.queueOut(&ServerComMessage{
		Meta: &MsgServerMeta{
			Id:        pkt.Id,
			Chatroom:  pkt.Original,
			Timestamp: pkt.Timestamp,
			Desc: &MsgChatroomDesc{
				Chatroom:  pkt.Original,
				Name:      r.roomName,
				Address:   r.address,
				SeqId:     r.seq,
				CreatedAt: r.created,
			},
		},
		RcptTo: r.name, Timestamp: pkt.Timestamp})

	// Fetch history if requested in the same packet.
	if pkt.Sub != nil && pkt.Sub.Get != nil {
		getPkt := &ClientComMessage{
			Get: &MsgClientGet{
				Id:         pkt.Id,
				Chatroom:   pkt.Original,
				MsgGetOpts: *pkt.Sub.Get,
			},
			Id:        pkt.Id,
			Original:  pkt.Original,
			RcptTo:    pkt.RcptTo,
			Timestamp: pkt.Timestamp,
		}
		r.replyGetData(sess, getPkt)
	}
}

// handleLeave detaches the session. Detaching a session which is not
// attached is a no-op.
func (r *Room) handleLeave(leave *sessionLeave) {
	if _, attached := r.sessions[leave.sess]; !attached {
		if leave.reqId != "" {
			leave.sess.queueOut(InfoNotJoined(leave.reqId, r.name, types.TimeNow()))
		}
		return
	}

	delete(r.sessions, leave.sess)
	leave.sess.delSub(r.name)

	if leave.reqId != "" {
		leave.sess.queueOut(NoErr(leave.reqId, r.name, types.TimeNow()))
	}
}

// handleDelivery persists the message with the next seq id, acknowledges it
// to the originator and fans it out to attached sessions. Access is
// re-checked before the append for session-originated messages and per
// session at fanout time, so a revoked grant stops both sending and
// delivery immediately.
func (r *Room) handleDelivery(req *deliverReq) {
	if req.sess != nil {
		// Session-originated message: authorization was checked when the
		// session subscribed, but the grant may have been revoked since.
		// Re-check before anything is persisted.
		ok, err := globals.policy.CanAccess(req.sess.uid, r.uid)
		if err != nil {
			logs.Err.Println("room: access check failed", r.name, err)
			req.respond(types.ErrInternal)
			return
		}
		if !ok {
			req.respond(types.ErrPermissionDenied)
			return
		}
	}

	if req.direction == types.DirOutbound {
		if req.from == "" {
			req.from = r.address
		}
		if req.to == "" {
			req.to = r.peer
		}
		if req.to == "" {
			// Nobody has messaged this room yet and no explicit destination
			// was given.
			req.respond(types.ErrMalformed)
			return
		}
	}

	msg := &types.Message{
		CreatedAt: req.timestamp,
		Chatroom:  r.uid,
		SeqId:     r.seq + 1,
		Direction: req.direction,
		From:      req.from,
		To:        req.to,
		Channel:   req.channel,
		Body:      req.body,
	}

	saved, err := store.Messages.Save(msg)
	if err != nil {
		logs.Err.Println("room: failed to save message", r.name, err)
		req.respond(types.ErrInternal)
		return
	}
	r.seq = saved.SeqId

	// The message is durable: acknowledge before fanout.
	req.respond(nil)

	if req.direction == types.DirInbound {
		r.peer = req.from
		statsInc("InboundMessagesTotal", 1)
	} else {
		statsInc("OutboundMessagesTotal", 1)

		// Hand the outbound message to the carrier. Sends go through a
		// bounded worker pool so a slow carrier API cannot spawn
		// unlimited goroutines.
		if globals.provider != nil {
			from, to, body, name := r.address, req.to, req.body, r.name
			globals.sendPool.Schedule(&Task{work: func() {
				if err := globals.provider.Send(from, to, body); err != nil {
					logs.Warn.Println("room: provider send failed", name, err)
				}
			}})
		}
	}

	if globals.events != nil {
		globals.events.Publish(saved)
	}

	data := &ServerComMessage{Data: &MsgServerData{
		Chatroom:  r.name,
		SeqId:     saved.SeqId,
		Direction: saved.Direction,
		From:      saved.From,
		To:        saved.To,
		Channel:   saved.Channel,
		Body:      saved.Body,
		Timestamp: saved.CreatedAt,
	}, RcptTo: r.name, Timestamp: saved.CreatedAt}
	if req.sess != nil {
		// The originator already has the message; it gets the {ctrl} ack
		// instead of an echo.
		data.SkipSid = req.sess.sid
	}

	r.fanout(data)
}

// fanout sends the message to every attached session which still has
// access. Sessions too slow to accept the message are detached.
func (r *Room) fanout(data *ServerComMessage) {
	for sess := range r.sessions {
		if data.SkipSid != "" && sess.sid == data.SkipSid {
			continue
		}

		ok, err := globals.policy.CanAccess(sess.uid, r.uid)
		if err != nil {
			logs.Err.Println("room: access re-check failed", r.name, err)
			continue
		}
		if !ok {
			// Access was revoked after the session joined.
			delete(r.sessions, sess)
			sess.delSub(r.name)
			sess.queueOut(NoErrEvicted("", r.name, data.Timestamp))
			continue
		}

		if !sess.queueOut(data) {
			logs.Err.Println("room: fanout failed, dropping slow session", r.name, sess.sid)
			delete(r.sessions, sess)
			sess.delSub(r.name)
		}
	}
}

// replyGetData loads a range of chatroom history and sends it to the
// session as a single {meta} packet.
func (r *Room) replyGetData(sess *Session, pkt *ClientComMessage) {
	opts := &types.QueryOpt{}
	if pkt.Get != nil {
		opts.Since = pkt.Get.SinceId
		opts.Before = pkt.Get.BeforeId
		opts.Limit = pkt.Get.Limit
		opts.Ascending = pkt.Get.Ascending
		opts.Direction = pkt.Get.Direction
		opts.UnreadOnly = pkt.Get.UnreadOnly
	}

	messages, err := store.Messages.GetAll(r.uid, opts)
	if err != nil {
		logs.Err.Println("room: failed to load history", r.name, err)
		sess.queueOut(ErrUnknown(pkt.Id, pkt.Original, pkt.Timestamp))
		return
	}

	meta := &MsgServerMeta{
		Id:        pkt.Id,
		Chatroom:  pkt.Original,
		Timestamp: pkt.Timestamp,
	}
	for i := range messages {
		msg := &messages[i]
		meta.Data = append(meta.Data, MsgServerData{
			Chatroom:  pkt.Original,
			SeqId:     msg.SeqId,
			Direction: msg.Direction,
			From:      msg.From,
			To:        msg.To,
			Channel:   msg.Channel,
			Body:      msg.Body,
			Read:      msg.Read,
			Timestamp: msg.CreatedAt,
		})
	}

	sess.queueOut(&ServerComMessage{Meta: meta, RcptTo: r.name, Timestamp: pkt.Timestamp})
}

// handleNote marks a single message read. Marking an already read message
// again is a no-op.
func (r *Room) handleNote(sess *Session, pkt *ClientComMessage) {
	if pkt.Note == nil || pkt.Note.SeqId < 1 || pkt.Note.SeqId > r.seq {
		// Notes carry no id, there is nothing to reply to.
		return
	}

	if err := store.Messages.MarkRead(r.uid, pkt.Note.SeqId); err != nil && err != types.ErrNotFound {
		logs.Warn.Println("room: failed to mark message read", r.name, err)
	}
}

/******************************************************************************
 *
 *  Description :
 *
 *    Main hub for processing events such as loading/tearing down chatrooms,
 *    routing inbound and outbound messages to them.
 *
 *****************************************************************************/

package main

import (
	"sync"

	"github.com/teamchat/inbox/server/logs"
	"github.com/teamchat/inbox/server/store/types"
)

// Request to hub to subscribe session to a chatroom.
type sessionJoin struct {
	// Routable name of the chatroom.
	chatroom string
	// Message, containing request details.
	pkt *ClientComMessage
	// Session to attach to the chatroom.
	sess *Session
}

// Session wants to leave the chatroom.
type sessionLeave struct {
	// Session which initiated the request.
	sess *Session
	// Id of the originating request, if any.
	reqId string
}

// Request to hub to remove the chatroom from the map of active rooms.
type roomUnreg struct {
	// Routable name of the chatroom to drop.
	rcptTo string
	// The room is being deleted, evict subscribers.
	del bool
	// Channel for reporting operation completion. Could be nil.
	done chan<- bool
}

// Kinds of meta requests handled by the room goroutine.
const (
	metaGet = iota
	metaNote
)

type metaReq struct {
	// Packet containing details of the {get} or {note} request.
	pkt *ClientComMessage
	// Session which originated the request.
	sess *Session
	// One of metaGet, metaNote.
	what int
}

// Hub is the core structure which holds active chatrooms.
type Hub struct {

	// Rooms indexed by routable name.
	rooms *sync.Map

	// Subscribe session to a chatroom, possibly loading the room first,
	// buffered at 256.
	join chan *sessionJoin

	// Deliver a message to a chatroom, possibly loading the room first,
	// buffered at 4096.
	deliver chan *deliverReq

	// Remove chatroom from the hub, buffered at 256.
	unreg chan *roomUnreg

	// Request to shutdown, unbuffered.
	shutdown chan chan<- bool
}

func (h *Hub) roomGet(name string) *Room {
	if r, ok := h.rooms.Load(name); ok {
		return r.(*Room)
	}
	return nil
}

func (h *Hub) roomPut(name string, r *Room) {
	h.rooms.Store(name, r)
}

func (h *Hub) roomDel(name string) {
	h.rooms.Delete(name)
}

func newHub() *Hub {
	var h = &Hub{
		rooms: &sync.Map{},
		join:  make(chan *sessionJoin, 256),
		// Needs a deep buffer: the webhook handler and the REST API push
		// deliveries here.
		deliver:  make(chan *deliverReq, 4096),
		unreg:    make(chan *roomUnreg, 256),
		shutdown: make(chan chan<- bool),
	}

	statsRegisterInt("LiveRooms")
	statsRegisterInt("TotalRooms")

	statsRegisterInt("IncomingMessagesWebsockTotal")
	statsRegisterInt("OutgoingMessagesWebsockTotal")

	statsRegisterInt("InboundMessagesTotal")
	statsRegisterInt("OutboundMessagesTotal")
	statsRegisterInt("DuplicatesSuppressedTotal")

	statsRegisterInt("CtrlCodesTotal2xx")
	statsRegisterInt("CtrlCodesTotal3xx")
	statsRegisterInt("CtrlCodesTotal4xx")
	statsRegisterInt("CtrlCodesTotal5xx")

	go h.run()

	return h
}

func (h *Hub) run() {

	for {
		select {
		case join := <-h.join:
			// Handle a subscription request:
			// 1. If the room is not loaded, load it from the store.
			// 2. Check access rights and reject, if appropriate.
			// 3. Attach session to the room.
			r := h.roomGet(join.chatroom)
			if r == nil {
				// Room is not loaded.
				r = h.newRoom(join.chatroom)
				r.reg <- join

				// Load the room's persistent state.
				go roomInit(r, h)
			} else {
				// Room found. It will check access rights and send the
				// appropriate {ctrl}.
				select {
				case r.reg <- join:
				default:
					join.sess.queueOut(ErrServiceUnavailable(join.pkt.Id, join.pkt.Original, join.pkt.Timestamp))
					logs.Err.Println("hub: room's reg queue full", join.chatroom, join.sess.sid)
				}
			}

		case req := <-h.deliver:
			// A message for a chatroom. The room is loaded on demand: messages
			// are persisted whether anyone is subscribed or not.
			r := h.roomGet(req.rcptTo)
			if r == nil {
				r = h.newRoom(req.rcptTo)
				r.deliver <- req

				go roomInit(r, h)
			} else {
				select {
				case r.deliver <- req:
				default:
					logs.Err.Println("hub: room's delivery queue full", req.rcptTo)
					req.respond(types.ErrInternal)
				}
			}

		case unreg := <-h.unreg:
			if r := h.roomGet(unreg.rcptTo); r != nil {
				h.roomDel(unreg.rcptTo)
				reason := StopShutdown
				if unreg.del {
					reason = StopDeleted
				}
				r.exit <- &roomShutDown{reason: reason, done: unreg.done}
			} else if unreg.done != nil {
				unreg.done <- true
			}

		case hubdone := <-h.shutdown:
			// Start cleanup process.
			roomsdone := make(chan bool)
			roomCount := 0
			h.rooms.Range(func(_, r interface{}) bool {
				r.(*Room).exit <- &roomShutDown{reason: StopShutdown, done: roomsdone}
				roomCount++
				return true
			})

			for i := 0; i < roomCount; i++ {
				<-roomsdone
			}

			logs.Info.Printf("Hub shutdown completed with %d rooms", roomCount)

			// Let the main goroutine know we are done with the cleanup.
			hubdone <- true

			return
		}
	}
}

// newRoom creates an unloaded room shell and adds it to the map. The room's
// goroutine is not running yet; requests queue up on the buffered channels
// until roomInit either starts the goroutine or fails the load.
func (h *Hub) newRoom(name string) *Room {
	r := &Room{
		name:     name,
		sessions: make(map[*Session]struct{}),
		reg:      make(chan *sessionJoin, 256),
		unreg:    make(chan *sessionLeave, 256),
		deliver:  make(chan *deliverReq, 256),
		meta:     make(chan *metaReq, 64),
		exit:     make(chan *roomShutDown, 1),
	}
	h.roomPut(name, r)
	return r
}

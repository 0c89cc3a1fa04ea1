package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/overlap/messages"
	"github.com/aukilabs/overlap/models"
	"github.com/aukilabs/overlap/modules"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize    = 512
	receiveChanSize = 512
	relayChanSize   = 512
)

// Receiver reads the next message of a connection. It returns the number of
// bytes read.
type Receiver func() (messages.Msg, int, error)

// Sender writes a message to a connection. It returns the number of bytes
// written.
type Sender func(messages.Msg) (int, error)

// Handler represents an overlap server handler.
type Handler interface {
	// Handles a ping request.
	HandlePing(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error

	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Handles a request to join a world. relay is the sender given to the
	// participant for messages emitted by the world frame goroutine. It never
	// blocks.
	HandleWorldJoin(ctx context.Context, relay, respond messages.ResponseSender, msg messages.Msg) error

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Handles a request to create an entity.
	HandleEntityAdd(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error

	// Handles a request to delete an entity and its colliders.
	HandleEntityDelete(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error

	// Handles a request to attach a collider to an entity.
	HandleColliderAdd(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error

	// Handles a collider being enabled or disabled.
	HandleColliderEnable(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error

	// Handle a message with a module.
	HandleWithModule(ctx context.Context, module modules.Module, respond messages.ResponseSender, msg messages.Msg) error

	// Creates a message receiver used to receive incoming messages.
	Receiver() Receiver

	// Creates a message sender passed in service methods in order to send
	// messages.
	Sender() Sender

	// Closes the service and releases its allocated resources.
	Close()

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	// Returns the world store.
	GetWorlds() *models.WorldStore

	// Returns the modules.
	GetModules() []modules.Module

	// The currently joined world.
	CurrentWorld() *models.World

	// The current participant.
	CurrentParticipant() *models.Participant

	// Get ClientID
	GetClientID() string
}

// Handle handles the given service.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	// The overlap handler.
	Handler Handler

	sendChan       chan messages.Msg
	receiveChan    chan messages.Msg
	relayChan      chan messages.Msg
	sender         Sender
	receiver       Receiver
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 8)
	defer func() {
		for len(h.disconnectChan) != 0 {
			<-h.disconnectChan
		}
	}()

	var wg sync.WaitGroup

	h.sendChan = make(chan messages.Msg, sendChanSize)
	h.sender = h.Handler.Sender()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	h.receiveChan = make(chan messages.Msg, receiveChanSize)
	h.receiver = h.Handler.Receiver()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx)
	}()

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	h.relayChan = make(chan messages.Msg, relayChanSize)

	var responder = responseSender{
		send:    h.send,
		sendMsg: h.sendMsg,
	}

	var relay = responseSender{
		send:    h.relay,
		sendMsg: h.relayMsg,
	}

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			h.disconnect(ctx.Err())

		case <-idleTimer.C:
			h.disconnect(errors.New("idle connection").WithTag("duration", idleTimeout))

		case msg := <-h.receiveChan:
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			if err := h.handleMessage(ctx, msg, relay, responder); err != nil {
				h.disconnect(errors.New("handling message failed").Wrap(err))
			}

		case msg := <-h.relayChan:
			h.sendMsg(msg)

		case err := <-h.disconnectChan:
			h.handleDisconnect(err)
			if ctx.Err() == nil {
				// cancel context so go routines can cleanly exit
				cancel()
			}
		}
	}

	wg.Wait()
}

func (h *handler) send(m messages.Message) {
	msg, err := messages.MsgFromMessage(m)
	if err != nil {
		logs.WithTag("message", m).
			WithClientID(h.Handler.GetClientID()).
			Debug(err)
		return
	}
	h.sendChan <- msg
}

func (h *handler) sendMsg(msg messages.Msg) {
	h.sendChan <- msg
}

// relay queues a message emitted outside of the connection goroutine. The
// client is disconnected when the queue is full.
func (h *handler) relay(m messages.Message) {
	msg, err := messages.MsgFromMessage(m)
	if err != nil {
		logs.WithTag("message", m).
			WithClientID(h.Handler.GetClientID()).
			Debug(err)
		return
	}
	h.relayMsg(msg)
}

func (h *handler) relayMsg(msg messages.Msg) {
	select {
	case h.relayChan <- msg:
	default:
		h.disconnect(errors.New("relay queue is full").
			WithTag("msg_type", msg.Type).
			WithTag("size", cap(h.relayChan)))
	}
}

func (h *handler) startSending(ctx context.Context) {
	defer func() {
		for len(h.sendChan) != 0 {
			<-h.sendChan
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.sendChan:
			if _, err := h.sender(msg); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context) {
	for {
		msg, _, err := h.receiver()
		if errors.IsType(err, messages.ErrTypeMsgMalformed) {
			logs.WithClientID(h.Handler.GetClientID()).Debug(err)
			continue
		}
		if err != nil {
			h.disconnect(errors.New("receiving message failed").Wrap(err))
			return
		}

		select {
		case <-ctx.Done():
			return

		case h.receiveChan <- msg:
		}
	}
}

func (h *handler) handleMessage(ctx context.Context, msg messages.Msg, relay, responder messages.ResponseSender) error {
	var err error
	handled := true

	switch msg.Type {
	case messages.MsgTypePing:
		err = h.Handler.HandlePing(ctx, responder, msg)

	case messages.MsgTypeWorldJoinRequest:
		err = h.Handler.HandleWorldJoin(ctx, relay, responder, msg)

	case messages.MsgTypeEntityAddRequest:
		err = h.Handler.HandleEntityAdd(ctx, responder, msg)

	case messages.MsgTypeEntityDeleteRequest:
		err = h.Handler.HandleEntityDelete(ctx, responder, msg)

	case messages.MsgTypeColliderAddRequest:
		err = h.Handler.HandleColliderAdd(ctx, responder, msg)

	case messages.MsgTypeColliderEnable:
		err = h.Handler.HandleColliderEnable(ctx, responder, msg)

	default:
		handled = false
	}

	if err != nil {
		return err
	}

	if h.Handler.CurrentParticipant() == nil || h.Handler.CurrentWorld() == nil {
		if !handled {
			return respondNotJoined(responder, msg)
		}
		return nil
	}

	for _, m := range h.Handler.GetModules() {
		if err = h.Handler.HandleWithModule(ctx, m, responder, msg); err != nil {
			return err
		}
	}
	return nil
}

func respondNotJoined(respond messages.ResponseSender, msg messages.Msg) error {
	var req messages.Request
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	respond.Send(messages.NewErrorResponse(req.RequestID, messages.ErrorCodeNotJoined))
	return nil
}

func (h *handler) disconnect(err error) {
	select {
	case h.disconnectChan <- err:
	default:
	}
}

func (h *handler) handleDisconnect(err error) {
	h.Conn.Close()
	h.Handler.HandleDisconnect(err)
}

type responseSender struct {
	send    func(messages.Message)
	sendMsg func(messages.Msg)
}

func (r responseSender) Send(m messages.Message) {
	r.send(m)
}

func (r responseSender) SendMsg(msg messages.Msg) {
	r.sendMsg(msg)
}

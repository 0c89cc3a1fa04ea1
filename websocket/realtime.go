package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/overlap/messages"
	"github.com/aukilabs/overlap/models"
	"github.com/aukilabs/overlap/modules"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// HeaderClientID is the HTTP header a client uses to identify itself.
const HeaderClientID = "X-Overlap-Client-Id"

// RealtimeHandler represents a service that manages multiple client connections
// and applies their actions to shared worlds.
type RealtimeHandler struct {
	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The store that contains all the server worlds.
	Worlds *models.WorldStore

	// The modules that expand the server features.
	Modules []modules.Module

	conn               *websocket.Conn
	currentWorld       *models.World
	currentParticipant *models.Participant

	clientID string
}

func (h *RealtimeHandler) HandleConnect(conn *websocket.Conn) {
	h.clientID = conn.Request().Header.Get(HeaderClientID)
	if h.clientID == "" {
		h.clientID = uuid.NewString()
	}

	h.conn = conn
}

func (h *RealtimeHandler) HandlePing(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	var req messages.Request
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	respond.Send(messages.Response{
		Header: messages.Header{
			Type:      messages.MsgTypePong,
			RequestID: req.RequestID,
		},
	})
	return nil
}

func (h *RealtimeHandler) HandleWorldJoin(ctx context.Context, relay, respond messages.ResponseSender, msg messages.Msg) error {
	var req messages.WorldJoinRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	if h.currentWorld != nil && h.Worlds.GlobalWorldID(h.currentWorld.ID) == req.WorldID {
		respond.Send(messages.NewErrorResponse(req.RequestID, messages.ErrorCodeAlreadyJoined))
		return nil
	}

	world, ok := h.Worlds.GetByGlobalID(req.WorldID)
	if !ok && req.WorldID != "" {
		respond.Send(messages.NewErrorResponse(req.RequestID, messages.ErrorCodeNotFound))
		return nil
	}

	if h.currentParticipant != nil {
		h.leaveWorld()
	}

	if !ok {
		world = h.Worlds.Create(ctx)
		go world.StartDispatchFrames()
	}

	participant := &models.Participant{
		ID:        world.NewParticipantID(),
		Responder: relay,
	}
	world.AddParticipant(participant)

	respond.Send(messages.WorldJoinResponse{
		Header: messages.Header{
			Type:      messages.MsgTypeWorldJoinResponse,
			RequestID: req.RequestID,
		},
		WorldID:       h.Worlds.GlobalWorldID(world.ID),
		WorldUUID:     world.WorldUUID,
		ParticipantID: participant.ID,
		Sensors:       world.SensorNames(),
	})

	h.currentWorld = world
	h.currentParticipant = participant

	for _, m := range h.Modules {
		m.Init(world, participant)
	}

	return nil
}

func (h *RealtimeHandler) HandleDisconnect(_ error) {
	if h.currentParticipant != nil {
		h.leaveWorld()
	}
}

func (h *RealtimeHandler) HandleEntityAdd(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	var req messages.EntityAddRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	participant := h.currentParticipant
	world := h.currentWorld
	if participant == nil || world == nil {
		respond.Send(messages.NewErrorResponse(req.RequestID, messages.ErrorCodeNotJoined))
		return nil
	}

	entity := world.AddEntity(participant, req.Name, req.Kind, req.Persist)

	respond.Send(messages.EntityAddResponse{
		Header: messages.Header{
			Type:      messages.MsgTypeEntityAddResponse,
			RequestID: req.RequestID,
		},
		EntityID: entity.ID,
	})
	return nil
}

func (h *RealtimeHandler) HandleEntityDelete(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	var req messages.EntityDeleteRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	participant := h.currentParticipant
	world := h.currentWorld
	if participant == nil || world == nil {
		respond.Send(messages.NewErrorResponse(req.RequestID, messages.ErrorCodeNotJoined))
		return nil
	}

	entity, ok := world.EntityByID(req.EntityID)
	if !ok {
		respond.Send(messages.NewErrorResponse(req.RequestID, messages.ErrorCodeNotFound))
		return nil
	}

	if entity.ParticipantID != participant.ID {
		respond.Send(messages.NewErrorResponse(req.RequestID, messages.ErrorCodeUnauthorized))
		return nil
	}

	world.RemoveEntity(entity)
	participant.RemoveEntity(entity)

	respond.Send(messages.Response{
		Header: messages.Header{
			Type:      messages.MsgTypeEntityDeleteResponse,
			RequestID: req.RequestID,
		},
	})
	return nil
}

func (h *RealtimeHandler) HandleColliderAdd(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	var req messages.ColliderAddRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	participant := h.currentParticipant
	world := h.currentWorld
	if participant == nil || world == nil {
		respond.Send(messages.NewErrorResponse(req.RequestID, messages.ErrorCodeNotJoined))
		return nil
	}

	entity, ok := world.EntityByID(req.EntityID)
	if !ok {
		respond.Send(messages.NewErrorResponse(req.RequestID, messages.ErrorCodeNotFound))
		return nil
	}

	if entity.ParticipantID != participant.ID {
		respond.Send(messages.NewErrorResponse(req.RequestID, messages.ErrorCodeUnauthorized))
		return nil
	}

	collider, err := world.AddCollider(entity.ID, req.Layer)
	if errors.IsType(err, models.ErrTypeEntityNotFound) {
		respond.Send(messages.NewErrorResponse(req.RequestID, messages.ErrorCodeNotFound))
		return nil
	}
	if err != nil {
		return err
	}

	respond.Send(messages.ColliderAddResponse{
		Header: messages.Header{
			Type:      messages.MsgTypeColliderAddResponse,
			RequestID: req.RequestID,
		},
		ColliderID: collider.ID,
	})
	return nil
}

func (h *RealtimeHandler) HandleColliderEnable(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	var req messages.ColliderEnable
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	participant := h.currentParticipant
	world := h.currentWorld
	if participant == nil || world == nil {
		respond.Send(messages.NewErrorResponse(req.RequestID, messages.ErrorCodeNotJoined))
		return nil
	}

	collider, ok := world.ColliderByID(req.ColliderID)
	if !ok {
		respond.Send(messages.NewErrorResponse(req.RequestID, messages.ErrorCodeNotFound))
		return nil
	}

	entity, ok := world.EntityByID(collider.EntityID)
	if !ok || entity.ParticipantID != participant.ID {
		respond.Send(messages.NewErrorResponse(req.RequestID, messages.ErrorCodeUnauthorized))
		return nil
	}

	collider.SetEnabled(req.Enabled)

	respond.Send(messages.Response{
		Header: messages.Header{
			Type:      messages.MsgTypeColliderEnableResponse,
			RequestID: req.RequestID,
		},
	})
	return nil
}

func (h *RealtimeHandler) HandleWithModule(ctx context.Context, m modules.Module, respond messages.ResponseSender, msg messages.Msg) error {
	if h.CurrentParticipant() == nil || h.CurrentWorld() == nil {
		return nil
	}

	err := m.HandleMsg(ctx, respond, msg)
	if errors.IsType(err, messages.ErrTypeMsgSkip) {
		return nil
	}
	if err != nil {
		return errors.New("handling message with module failed").
			WithTag("module", m.Name()).
			Wrap(err)
	}
	return nil
}

func (h *RealtimeHandler) Receiver() Receiver {
	return func() (messages.Msg, int, error) {
		return messages.Receive(h.conn)
	}
}

func (h *RealtimeHandler) Sender() Sender {
	return func(msg messages.Msg) (int, error) {
		return messages.Send(h.conn, msg)
	}
}

func (h *RealtimeHandler) Close() {
}

func (h *RealtimeHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *RealtimeHandler) GetWorlds() *models.WorldStore {
	return h.Worlds
}

func (h *RealtimeHandler) GetModules() []modules.Module {
	return h.Modules
}

func (h *RealtimeHandler) CurrentWorld() *models.World {
	return h.currentWorld
}

func (h *RealtimeHandler) CurrentParticipant() *models.Participant {
	return h.currentParticipant
}

func (h *RealtimeHandler) GetClientID() string {
	return h.clientID
}

// leaveWorld removes the participant and its non persistent entities. Their
// colliders vanish without overlap end events: sensors drop them on their
// next sweep.
func (h *RealtimeHandler) leaveWorld() {
	world := h.currentWorld
	participant := h.currentParticipant

	if participant == nil || world == nil {
		return
	}

	for _, m := range h.Modules {
		m.HandleDisconnect()
	}

	for id := range participant.EntityIDs() {
		entity, ok := world.EntityByID(id)
		if !ok || entity.Persist {
			continue
		}

		world.RemoveEntity(entity)
		participant.RemoveEntity(entity)
	}

	world.RemoveParticipant(participant)

	if world.ParticipantCount() == 0 {
		h.Worlds.Remove(context.Background(), world)
	}

	h.currentParticipant = nil
	h.currentWorld = nil
}

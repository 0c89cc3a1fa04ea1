// Package sensor relays world sensor events to the connected participants.
package sensor

import (
	"context"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/overlap/featureflag"
	"github.com/aukilabs/overlap/messages"
	"github.com/aukilabs/overlap/models"
)

type Module struct {
	FeatureFlags featureflag.FeatureFlag

	currentWorld       *models.World
	currentParticipant *models.Participant
	cancels            []func()
}

func (m *Module) Name() string {
	return "sensor"
}

func (m *Module) Init(w *models.World, p *models.Participant) {
	m.unsubscribe()

	m.currentWorld = w
	m.currentParticipant = p

	respond := p.Responder
	m.cancels = append(m.cancels,
		w.Transitions.Subscribe(func(t models.Transition) {
			m.relayTransition(respond, t)
		}),
		w.Occupancy.Subscribe(func(o models.Occupancy) {
			m.relayOccupancy(respond, o)
		}),
	)
}

func (m *Module) HandleMsg(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	switch msg.Type {
	case messages.MsgTypeOverlapBegin:
		return m.handleOverlap(ctx, respond, msg, models.OverlapBegin)

	case messages.MsgTypeOverlapEnd:
		return m.handleOverlap(ctx, respond, msg, models.OverlapEnd)

	case messages.MsgTypeSensorStateRequest:
		return m.handleSensorState(ctx, respond, msg)

	case messages.MsgTypeSensorClearRequest:
		return m.handleSensorClear(ctx, respond, msg)

	default:
		return messages.ErrModuleMsgSkip
	}
}

func (m *Module) HandleDisconnect() {
	m.unsubscribe()
	m.currentWorld = nil
	m.currentParticipant = nil
}

func (m *Module) unsubscribe() {
	for _, cancel := range m.cancels {
		cancel()
	}
	m.cancels = nil
}

func (m *Module) handleOverlap(ctx context.Context, respond messages.ResponseSender, msg messages.Msg, kind models.EventKind) error {
	var req messages.Overlap
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	world, err := m.world(msg)
	if err != nil {
		return err
	}

	if _, ok := world.ColliderByID(req.ColliderID); !ok {
		respond.Send(messages.NewErrorResponse(req.RequestID, messages.ErrorCodeNotFound))
		return nil
	}

	err = world.EnqueueOverlap(models.OverlapEvent{
		Kind:       kind,
		Sensor:     req.Sensor,
		ColliderID: req.ColliderID,
	})
	if errors.IsType(err, models.ErrTypeSensorNotFound) {
		respond.Send(messages.NewErrorResponse(req.RequestID, messages.ErrorCodeNotFound))
		return nil
	}
	return err
}

func (m *Module) handleSensorState(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	var req messages.SensorRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	world, err := m.world(msg)
	if err != nil {
		return err
	}

	snapshot, ok := world.Snapshot(req.Sensor)
	if !ok {
		respond.Send(messages.NewErrorResponse(req.RequestID, messages.ErrorCodeNotFound))
		return nil
	}

	respond.Send(messages.SensorStateResponse{
		Header: messages.Header{
			Type:      messages.MsgTypeSensorStateResponse,
			RequestID: req.RequestID,
		},
		Snapshot: snapshot,
	})
	return nil
}

func (m *Module) handleSensorClear(ctx context.Context, respond messages.ResponseSender, msg messages.Msg) error {
	var req messages.SensorRequest
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	world, err := m.world(msg)
	if err != nil {
		return err
	}

	err = world.EnqueueOverlap(models.OverlapEvent{
		Kind:   models.SensorClear,
		Sensor: req.Sensor,
	})
	if errors.IsType(err, models.ErrTypeSensorNotFound) {
		respond.Send(messages.NewErrorResponse(req.RequestID, messages.ErrorCodeNotFound))
		return nil
	}
	if err != nil {
		return err
	}

	respond.Send(messages.Response{
		Header: messages.Header{
			Type:      messages.MsgTypeSensorClearResponse,
			RequestID: req.RequestID,
		},
	})
	return nil
}

func (m *Module) world(msg messages.Msg) (*models.World, error) {
	if m.currentWorld == nil || m.currentParticipant == nil {
		return nil, errors.New("world not joined").
			WithType(messages.ErrTypeWorldNotJoined).
			WithTag("msg_type", msg.Type)
	}
	return m.currentWorld, nil
}

func (m *Module) relayTransition(respond messages.ResponseSender, t models.Transition) {
	msgType := messages.MsgTypeItemExited
	flag := featureflag.FlagDisableItemExitedBroadcast
	if t.Entered {
		msgType = messages.MsgTypeItemEntered
		flag = featureflag.FlagDisableItemEnteredBroadcast
	}

	if m.FeatureFlags.IsSet(flag) {
		return
	}

	respond.Send(messages.ItemTransition{
		Header:   messages.Header{Type: msgType},
		Sensor:   t.Sensor,
		EntityID: t.EntityID,
	})
}

func (m *Module) relayOccupancy(respond messages.ResponseSender, o models.Occupancy) {
	if m.FeatureFlags.IsSet(featureflag.FlagDisableOccupancyBroadcast) {
		return
	}

	respond.Send(messages.SensorOccupancy{
		Header: messages.Header{Type: messages.MsgTypeSensorOccupancy},
		Sensor: o.Sensor,
		Count:  o.Count,
	})
}

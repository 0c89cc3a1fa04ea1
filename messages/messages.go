package messages

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/overlap/sensor"
	"github.com/segmentio/encoding/json"
)

type MsgType string

const (
	MsgTypePing  MsgType = "ping"
	MsgTypePong  MsgType = "pong"
	MsgTypeError MsgType = "error_response"

	MsgTypeWorldJoinRequest  MsgType = "world_join"
	MsgTypeWorldJoinResponse MsgType = "world_join_response"

	MsgTypeEntityAddRequest     MsgType = "entity_add"
	MsgTypeEntityAddResponse    MsgType = "entity_add_response"
	MsgTypeEntityDeleteRequest  MsgType = "entity_delete"
	MsgTypeEntityDeleteResponse MsgType = "entity_delete_response"

	MsgTypeColliderAddRequest     MsgType = "collider_add"
	MsgTypeColliderAddResponse    MsgType = "collider_add_response"
	MsgTypeColliderEnable         MsgType = "collider_enable"
	MsgTypeColliderEnableResponse MsgType = "collider_enable_response"

	MsgTypeOverlapBegin MsgType = "overlap_begin"
	MsgTypeOverlapEnd   MsgType = "overlap_end"

	MsgTypeSensorStateRequest  MsgType = "sensor_state"
	MsgTypeSensorStateResponse MsgType = "sensor_state_response"
	MsgTypeSensorClearRequest  MsgType = "sensor_clear"
	MsgTypeSensorClearResponse MsgType = "sensor_clear_response"

	MsgTypeItemEntered     MsgType = "item_entered"
	MsgTypeItemExited      MsgType = "item_exited"
	MsgTypeSensorOccupancy MsgType = "sensor_occupancy"
)

type ErrorCode string

const (
	ErrorCodeBadRequest    ErrorCode = "bad_request"
	ErrorCodeNotFound      ErrorCode = "not_found"
	ErrorCodeUnauthorized  ErrorCode = "unauthorized"
	ErrorCodeNotJoined     ErrorCode = "not_joined"
	ErrorCodeAlreadyJoined ErrorCode = "already_joined"
)

const (
	ErrTypeMsgSkip        = "msg-skip"
	ErrTypeMsgMalformed   = "msg-malformed"
	ErrTypeWorldNotJoined = "world-not-joined"
)

// ErrModuleMsgSkip is returned by modules that do not handle a message.
var ErrModuleMsgSkip = errors.New("message skipped by module").
	WithType(ErrTypeMsgSkip)

// Message is a message that can be sent to a client.
type Message interface {
	MsgType() MsgType
}

// Header is embedded in every message.
type Header struct {
	Type      MsgType `json:"type"`
	RequestID uint32  `json:"request_id,omitempty"`
}

func (h Header) MsgType() MsgType {
	return h.Type
}

// Msg is a raw message whose payload is decoded on demand.
type Msg struct {
	Type MsgType
	Data []byte
}

func (m Msg) TypeString() string {
	return string(m.Type)
}

// DataTo decodes the message payload into v.
func (m Msg) DataTo(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.New("decoding message failed").
			WithType(ErrTypeMsgMalformed).
			WithTag("msg_type", m.Type).
			Wrap(err)
	}
	return nil
}

// Decode reads the header of a raw payload.
func Decode(data []byte) (Msg, error) {
	var h Header
	if err := json.Unmarshal(data, &h); err != nil {
		return Msg{}, errors.New("decoding message header failed").
			WithType(ErrTypeMsgMalformed).
			Wrap(err)
	}

	if h.Type == "" {
		return Msg{}, errors.New("message type is missing").
			WithType(ErrTypeMsgMalformed)
	}

	return Msg{
		Type: h.Type,
		Data: data,
	}, nil
}

// MsgFromMessage encodes a message.
func MsgFromMessage(m Message) (Msg, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Msg{}, errors.New("encoding message failed").
			WithTag("msg_type", m.MsgType()).
			Wrap(err)
	}

	return Msg{
		Type: m.MsgType(),
		Data: data,
	}, nil
}

type Request struct {
	Header
}

type Response struct {
	Header
}

type ErrorResponse struct {
	Header
	Code ErrorCode `json:"code"`
}

func NewErrorResponse(requestID uint32, code ErrorCode) ErrorResponse {
	return ErrorResponse{
		Header: Header{
			Type:      MsgTypeError,
			RequestID: requestID,
		},
		Code: code,
	}
}

type WorldJoinRequest struct {
	Header
	WorldID string `json:"world_id,omitempty"`
}

type WorldJoinResponse struct {
	Header
	WorldID       string   `json:"world_id"`
	WorldUUID     string   `json:"world_uuid"`
	ParticipantID uint32   `json:"participant_id"`
	Sensors       []string `json:"sensors"`
}

type EntityAddRequest struct {
	Header
	Name    string `json:"name,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Persist bool   `json:"persist,omitempty"`
}

type EntityAddResponse struct {
	Header
	EntityID uint32 `json:"entity_id"`
}

type EntityDeleteRequest struct {
	Header
	EntityID uint32 `json:"entity_id"`
}

type ColliderAddRequest struct {
	Header
	EntityID uint32 `json:"entity_id"`
	Layer    string `json:"layer,omitempty"`
}

type ColliderAddResponse struct {
	Header
	ColliderID uint32 `json:"collider_id"`
}

type ColliderEnable struct {
	Header
	ColliderID uint32 `json:"collider_id"`
	Enabled    bool   `json:"enabled"`
}

// Overlap reports the start or the end of an overlap between a sensor and a
// collider.
type Overlap struct {
	Header
	Sensor     string `json:"sensor"`
	ColliderID uint32 `json:"collider_id"`
}

type SensorRequest struct {
	Header
	Sensor string `json:"sensor"`
}

type SensorStateResponse struct {
	Header
	Snapshot sensor.Snapshot `json:"snapshot"`
}

type ItemTransition struct {
	Header
	Sensor   string `json:"sensor"`
	EntityID uint32 `json:"entity_id"`
}

type SensorOccupancy struct {
	Header
	Sensor string `json:"sensor"`
	Count  int    `json:"count"`
}

// ResponseSender sends messages to a connected client.
type ResponseSender interface {
	// Encodes and sends a message.
	Send(Message)

	// Sends an already encoded message.
	SendMsg(Msg)
}

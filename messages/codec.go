package messages

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"golang.org/x/net/websocket"
)

// Codec transports JSON messages over WebSocket text frames.
var Codec = websocket.Codec{
	Marshal:   marshalMsg,
	Unmarshal: unmarshalMsg,
}

func marshalMsg(v any) ([]byte, byte, error) {
	switch m := v.(type) {
	case Msg:
		return m.Data, websocket.TextFrame, nil

	case Message:
		msg, err := MsgFromMessage(m)
		return msg.Data, websocket.TextFrame, err

	default:
		return nil, websocket.TextFrame, errors.New("unsupported message").
			WithTag("value", v)
	}
}

func unmarshalMsg(data []byte, payloadType byte, v any) error {
	msg, ok := v.(*Msg)
	if !ok {
		return errors.New("unsupported message destination")
	}

	m, err := Decode(data)
	if err != nil {
		return err
	}

	*msg = m
	return nil
}

// Receive reads a message from the given connection. It returns the number of
// bytes read.
func Receive(conn *websocket.Conn) (Msg, int, error) {
	var msg Msg
	err := Codec.Receive(conn, &msg)
	return msg, len(msg.Data), err
}

// Send writes a message to the given connection. It returns the number of
// bytes written.
func Send(conn *websocket.Conn, msg Msg) (int, error) {
	if err := Codec.Send(conn, msg); err != nil {
		return 0, err
	}
	return len(msg.Data), nil
}

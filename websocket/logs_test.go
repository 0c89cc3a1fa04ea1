package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/overlap/messages"
	"github.com/aukilabs/overlap/models"
	"github.com/stretchr/testify/require"
)

func TestHandlerWithLogsIncCounter(t *testing.T) {
	h := HandlerWithLogs(&RealtimeHandler{}, time.Second).(*handlerWithLogs)
	defer h.Close()

	h.incCounter("test")
	require.Equal(t, 1, h.counter["test"])
}

func TestHandlerWithLogsLogSummary(t *testing.T) {
	testClientID := "test-client"
	h := HandlerWithLogs(&RealtimeHandler{clientID: testClientID}, time.Second).(*handlerWithLogs)
	defer h.Close()

	h.incCounter("test-1")
	h.incCounter("test-1")
	h.incCounter("test-2")

	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		fmt.Fprint(&b, e)
	})

	h.logSummary()
	require.Empty(t, h.counter)

	logString := b.String()
	clientIDTag := fmt.Sprintf(`"%s":"%s"`, logs.ClientIDTag, testClientID)
	require.Contains(t, logString, `"test-1":2`)
	require.Contains(t, logString, `"test-2":1`)
	require.Contains(t, logString, clientIDTag)
	t.Log(b.String())
}

func TestHandlerWithLogsStartSummaryWorker(t *testing.T) {
	var wg sync.WaitGroup
	var once sync.Once

	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		fmt.Fprint(&b, e)
		once.Do(wg.Done)
	})

	wg.Add(1)
	h := HandlerWithLogs(&RealtimeHandler{}, time.Millisecond).(*handlerWithLogs)
	defer h.Close()

	// This is to avoid the test block since no summary is sent if no counter is
	// incremented.
	h.incCounter("test-1")

	wg.Wait()
	out := b.String()
	require.NotEmpty(t, out)
	t.Log(out)
}

type recordingResponder struct {
	mutex    sync.Mutex
	messages []messages.Message
}

func (r *recordingResponder) Send(m messages.Message) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.messages = append(r.messages, m)
}

func (r *recordingResponder) SendMsg(messages.Msg) {}

func TestHandlerWithLogsHandleWorldJoin(t *testing.T) {
	var mutex sync.Mutex
	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()
		fmt.Fprint(&b, e)
	})

	output := func() string {
		mutex.Lock()
		defer mutex.Unlock()

		out := b.String()
		b.Reset()
		return out
	}

	worlds := &models.WorldStore{
		ServerID:      "ted",
		FrameDuration: time.Millisecond * 5,
		Sensors:       []models.SensorDefinition{{Name: "zone"}},
	}

	h := HandlerWithLogs(&RealtimeHandler{
		Worlds:   worlds,
		clientID: "test-client",
	}, time.Minute).(*handlerWithLogs)
	defer h.Close()
	defer h.HandleDisconnect(nil)

	h.originalRequest = httptest.NewRequest(http.MethodGet, "/", nil)
	h.originalRequest.Header.Set("User-Agent", "ted")

	joinMsg := func(requestID uint32, worldID string) messages.Msg {
		msg, err := messages.MsgFromMessage(messages.WorldJoinRequest{
			Header: messages.Header{
				Type:      messages.MsgTypeWorldJoinRequest,
				RequestID: requestID,
			},
			WorldID: worldID,
		})
		require.NoError(t, err)
		return msg
	}

	respond := &recordingResponder{}

	err := h.HandleWorldJoin(context.Background(), respond, respond, joinMsg(1, ""))
	require.NoError(t, err)

	world := h.CurrentWorld()
	require.NotNil(t, world)
	require.Equal(t, "tedx1", h.worldID)
	require.Equal(t, world.WorldUUID, h.worldUUID)
	require.Equal(t, h.CurrentParticipant().ID, h.participantID)

	out := output()
	require.Contains(t, out, "participant joined a world")
	require.Contains(t, out, fmt.Sprintf(`"%s":"tedx1"`, worldIDTag))
	require.Contains(t, out, fmt.Sprintf(`"%s":"%s"`, worldUUIDTag, world.WorldUUID))
	require.Contains(t, out, `"user_agent":"ted"`)

	err = h.HandleWorldJoin(context.Background(), respond, respond, joinMsg(2, "tedx1"))
	require.NoError(t, err)
	require.Equal(t, "tedx1", h.worldID)
	require.Equal(t, world, h.CurrentWorld())

	out = output()
	require.Contains(t, out, "participant failed to join a world")
	require.NotContains(t, out, "participant joined a world")
	require.Contains(t, out, `"request_id":2`)

	respond.mutex.Lock()
	defer respond.mutex.Unlock()
	require.Len(t, respond.messages, 2)
	require.Equal(t, messages.MsgTypeWorldJoinResponse, respond.messages[0].MsgType())
	require.Equal(t, messages.MsgTypeError, respond.messages[1].MsgType())
}

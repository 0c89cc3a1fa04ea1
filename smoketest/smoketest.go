// Package smoketest runs a two collider overlap scenario against a live
// overlap server.
package smoketest

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/overlap/messages"
	"github.com/aukilabs/overlap/scenario"
	owebsocket "github.com/aukilabs/overlap/websocket"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	defaultTimeout = time.Second * 10
	entityKind     = "smoke-test"
)

type Options struct {
	// The endpoint tested when a request does not specify one.
	Endpoint string

	// The User-Agent header sent when dialing.
	UserAgent string

	// The maximum duration of a run.
	Timeout time.Duration
}

// Request is the optional body of a smoke test request.
type Request struct {
	Endpoint string        `json:"endpoint,omitempty"`
	Sensor   string        `json:"sensor,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

// Result reports the outcome of a smoke test.
type Result struct {
	OK              bool    `json:"ok"`
	Endpoint        string  `json:"endpoint"`
	Sensor          string  `json:"sensor,omitempty"`
	Entered         int     `json:"entered"`
	Exited          int     `json:"exited"`
	LatencyMilliSec float64 `json:"latency_ms"`
	Error           string  `json:"error,omitempty"`
}

// HandleSmokeTest runs a smoke test and responds with its result.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		b, err := io.ReadAll(r.Body)
		if err != nil {
			logs.Warn(errors.New("reading body failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var req Request
		if len(b) != 0 {
			if err := json.Unmarshal(b, &req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}

		if req.Endpoint == "" {
			req.Endpoint = opts.Endpoint
		}
		if req.Timeout <= 0 {
			req.Timeout = opts.Timeout
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-r.Context().Done():
				cancel()
			case <-ctx.Done():
			}
		}()

		res := Run(ctx, RunOptions{
			Endpoint:  req.Endpoint,
			Sensor:    req.Sensor,
			UserAgent: opts.UserAgent,
			Timeout:   req.Timeout,
		})
		if !res.OK {
			logs.WithTag("endpoint", res.Endpoint).
				WithTag("sensor", res.Sensor).
				Warn(errors.New("smoke test failed").WithTag("reason", res.Error))
		}

		body, err := json.Marshal(res)
		if err != nil {
			logs.Error(errors.New("encoding smoke test result failed").Wrap(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		status := http.StatusOK
		if !res.OK {
			status = http.StatusBadGateway
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(body)
	}
}

type RunOptions struct {
	Endpoint string

	// The sensor overlapped. Defaults to the first sensor of the joined
	// world.
	Sensor string

	UserAgent string
	Timeout   time.Duration
}

// Run joins a new world, adds an entity with two colliders and overlaps both
// with a sensor. The test succeeds when the entity enters and exits the sensor
// exactly once.
func Run(ctx context.Context, opts RunOptions) Result {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	res := Result{Endpoint: opts.Endpoint}
	start := time.Now()

	err := run(ctx, opts, &res)
	res.LatencyMilliSec = float64(time.Since(start).Microseconds()) / 1000
	if err == nil && (res.Entered != 1 || res.Exited != 1) {
		err = errors.New("unexpected transition count").
			WithTag("entered", res.Entered).
			WithTag("exited", res.Exited)
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.OK = true
	return res
}

func run(ctx context.Context, opts RunOptions, res *Result) error {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	conn, err := dial(opts)
	if err != nil {
		return err
	}
	defer conn.Close()

	var (
		join     messages.WorldJoinResponse
		entity   messages.EntityAddResponse
		first    messages.ColliderAddResponse
		second   messages.ColliderAddResponse
		occupied messages.SensorOccupancy
		vacated  messages.SensorOccupancy
	)

	countEntered := countTransitions(messages.MsgTypeItemEntered, &entity.EntityID, &res.Entered)
	countExited := countTransitions(messages.MsgTypeItemExited, &entity.EntityID, &res.Exited)

	overlap := func(t messages.MsgType, requestID uint32, c *messages.ColliderAddResponse) func() messages.Message {
		return func() messages.Message {
			return messages.Overlap{
				Header: messages.Header{
					Type:      t,
					RequestID: requestID,
				},
				Sensor:     res.Sensor,
				ColliderID: c.ColliderID,
			}
		}
	}

	return scenario.NewScenario(conn).
		Send(func() messages.Message {
			return messages.WorldJoinRequest{
				Header: messages.Header{
					Type:      messages.MsgTypeWorldJoinRequest,
					RequestID: 1,
				},
			}
		}).
		Receive(
			failOnError,
			scenario.FilterByRequestID(1),
			scenario.FilterByType(messages.MsgTypeWorldJoinResponse),
			scenario.Decode(&join),
			func(messages.Msg) error {
				res.Sensor = opts.Sensor
				if res.Sensor == "" && len(join.Sensors) != 0 {
					res.Sensor = join.Sensors[0]
				}
				if res.Sensor == "" {
					return errors.New("joined world has no sensor")
				}
				return nil
			},
		).
		Send(func() messages.Message {
			return messages.EntityAddRequest{
				Header: messages.Header{
					Type:      messages.MsgTypeEntityAddRequest,
					RequestID: 2,
				},
				Name: entityKind,
				Kind: entityKind,
			}
		}).
		Receive(
			failOnError,
			scenario.FilterByRequestID(2),
			scenario.FilterByType(messages.MsgTypeEntityAddResponse),
			scenario.Decode(&entity),
		).
		Send(addCollider(3, &entity)).
		Receive(
			failOnError,
			scenario.FilterByRequestID(3),
			scenario.FilterByType(messages.MsgTypeColliderAddResponse),
			scenario.Decode(&first),
		).
		Send(addCollider(4, &entity)).
		Receive(
			failOnError,
			scenario.FilterByRequestID(4),
			scenario.FilterByType(messages.MsgTypeColliderAddResponse),
			scenario.Decode(&second),
		).
		Send(overlap(messages.MsgTypeOverlapBegin, 5, &first)).
		Send(overlap(messages.MsgTypeOverlapBegin, 6, &second)).
		Receive(
			failOnError,
			countEntered,
			scenario.FilterByType(messages.MsgTypeSensorOccupancy),
			scenario.Decode(&occupied),
			expectCount(&occupied, 1),
		).
		Send(overlap(messages.MsgTypeOverlapEnd, 7, &first)).
		Send(overlap(messages.MsgTypeOverlapEnd, 8, &second)).
		Receive(
			failOnError,
			countExited,
			scenario.FilterByType(messages.MsgTypeSensorOccupancy),
			scenario.Decode(&vacated),
			expectCount(&vacated, 0),
		).
		Run(ctx)
}

func dial(opts RunOptions) (*websocket.Conn, error) {
	u, err := url.Parse(opts.Endpoint)
	if err != nil {
		return nil, errors.New("parsing endpoint failed").
			WithTag("endpoint", opts.Endpoint).
			Wrap(err)
	}

	origin := *u
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
		origin.Scheme = "http"

	case "https", "wss":
		u.Scheme = "wss"
		origin.Scheme = "https"

	default:
		return nil, errors.New("unsupported endpoint scheme").
			WithTag("endpoint", opts.Endpoint)
	}

	config, err := websocket.NewConfig(u.String(), origin.String())
	if err != nil {
		return nil, errors.New("creating websocket config failed").Wrap(err)
	}
	config.Dialer = &net.Dialer{Timeout: opts.Timeout}
	config.Header.Set(owebsocket.HeaderClientID, uuid.NewString())
	if opts.UserAgent != "" {
		config.Header.Set("User-Agent", opts.UserAgent)
	}

	conn, err := websocket.DialConfig(config)
	if err != nil {
		return nil, errors.New("dialing endpoint failed").
			WithTag("endpoint", u.String()).
			Wrap(err)
	}
	return conn, nil
}

func addCollider(requestID uint32, entity *messages.EntityAddResponse) func() messages.Message {
	return func() messages.Message {
		return messages.ColliderAddRequest{
			Header: messages.Header{
				Type:      messages.MsgTypeColliderAddRequest,
				RequestID: requestID,
			},
			EntityID: entity.EntityID,
			Layer:    entityKind,
		}
	}
}

func failOnError(msg messages.Msg) error {
	if msg.Type != messages.MsgTypeError {
		return nil
	}

	var res messages.ErrorResponse
	if err := msg.DataTo(&res); err != nil {
		return err
	}
	return errors.New("server responded with an error").
		WithTag("request_id", res.RequestID).
		WithTag("code", res.Code)
}

func countTransitions(t messages.MsgType, entityID *uint32, count *int) scenario.Handler {
	return func(msg messages.Msg) error {
		if msg.Type != t {
			return nil
		}

		var tr messages.ItemTransition
		if err := msg.DataTo(&tr); err != nil {
			return err
		}
		if tr.EntityID == *entityID {
			*count++
		}
		return nil
	}
}

func expectCount(o *messages.SensorOccupancy, count int) scenario.Handler {
	return func(messages.Msg) error {
		if o.Count != count {
			return scenario.Unexpected("count", o.Count)
		}
		return nil
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/overlap/config"
	"github.com/aukilabs/overlap/featureflag"
	overlaphttp "github.com/aukilabs/overlap/http"
	"github.com/aukilabs/overlap/models"
	"github.com/aukilabs/overlap/modules"
	sensormodule "github.com/aukilabs/overlap/modules/sensor"
	"github.com/aukilabs/overlap/smoketest"
	owebsocket "github.com/aukilabs/overlap/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The Overlap version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "overlap_info",
		Help:        "Overlap information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(conf{})

type conf struct {
	Addr               string        `cli:""        env:"OVERLAP_ADDR"                 help:"Listening address for client connections."`
	AdminAddr          string        `cli:""        env:"OVERLAP_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string        `cli:""        env:"OVERLAP_PUBLIC_ENDPOINT"      help:"The public endpoint where this Overlap server is reachable."`
	ServerID           string        `cli:""        env:"OVERLAP_SERVER_ID"            help:"The prefix of the world ids hosted by this server."`
	SensorsFile        string        `cli:""        env:"OVERLAP_SENSORS_FILE"         help:"The YAML file that defines the sensors of each world."`
	LogLevel           string        `cli:""        env:"OVERLAP_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"OVERLAP_LOG_INDENT"           help:"Indent logs."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"OVERLAP_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle client will be disconnected"`
	FrameDuration      time.Duration `cli:",hidden" env:"OVERLAP_FRAME_DURATION"       help:"The duration of a world frame."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"OVERLAP_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	SmokeTestTimeout   time.Duration `cli:",hidden" env:"OVERLAP_SMOKE_TEST_TIMEOUT"   help:"The maximum duration of a smoke test."`
	Events             eventsConf    `cli:",hidden" env:"-"                            help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"OVERLAP_FEATURE_FLAGS"        help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                            help:"Show version."`
	Help               bool          `cli:""        env:"-"                            help:"Show help."`
}

type eventsConf struct {
	Endpoint      string        `cli:",hidden" env:"OVERLAP_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"OVERLAP_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"OVERLAP_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"OVERLAP_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	c := conf{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		PublicEndpoint:     "http://localhost:4000",
		ServerID:           "overlap",
		LogLevel:           logs.InfoLevel.String(),
		ClientIdleTimeout:  time.Minute * 5,
		FrameDuration:      time.Millisecond * 15,
		LogSummaryInterval: time.Minute,
		SmokeTestTimeout:   time.Second * 10,
		Events: eventsConf{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts Overlap server.").
		Options(&c)
	cli.Load()

	if c.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConf(c); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(c.LogLevel))
	logs.Encoder = json.Marshal
	if c.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if c.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      c.Events.Endpoint,
			FlushInterval: c.Events.FlushInterval,
			BatchSize:     c.Events.BatchSize,
			QueueSize:     c.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "overlap",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	sensors, err := loadSensors(c)
	if err != nil {
		logs.Fatal(errors.New("loading sensors failed").Wrap(err))
	}

	featureFlags := featureflag.New(c.FeatureFlags)

	worlds := models.WorldStore{
		ServerID:      c.ServerID,
		FrameDuration: c.FrameDuration,
		Sensors:       sensors.Definitions(featureFlags.IsSet(featureflag.FlagSilentStalePrune)),
	}

	var service http.ServeMux
	service.Handle("/health", overlaphttp.HandleWithCORS(http.HandlerFunc(overlaphttp.HandleHealthCheck)))
	service.Handle("/version", overlaphttp.HandleWithCORS(http.HandlerFunc(overlaphttp.HandleVersion(version))))

	service.Handle("/", overlaphttp.HandleWithCORS(websocket.Server{
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var rh owebsocket.Handler = &owebsocket.RealtimeHandler{
				ClientIdleTimeout: c.ClientIdleTimeout,
				Worlds:            &worlds,
				Modules: []modules.Module{
					&sensormodule.Module{
						FeatureFlags: featureFlags,
					},
				},
			}
			h := owebsocket.HandlerWithLogs(rh, c.LogSummaryInterval)
			h = owebsocket.HandlerWithMetrics(h, c.PublicEndpoint)
			defer h.Close()

			owebsocket.Handle(ctx, conn, h)
		},
	}))

	service.Handle("/ping", websocket.Server{
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()
			io.Copy(ws, ws)
		},
	})

	readinessCheck := func() bool {
		return ctx.Err() == nil
	}

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", overlaphttp.HandleHealthCheck)
	admin.HandleFunc("/ready", overlaphttp.HandleReadyCheck(readinessCheck))
	admin.HandleFunc("/debug/sensors", overlaphttp.HandleSensorSnapshots(&worlds))
	admin.HandleFunc("/smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Endpoint:  c.PublicEndpoint,
		UserAgent: fmt.Sprintf("Overlap %s", version),
		Timeout:   c.SmokeTestTimeout,
	}))
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))

	logs.WithTag("version", version).
		WithTag("log_level", c.LogLevel).
		WithTag("endpoint", c.PublicEndpoint).
		WithTag("server_id", c.ServerID).
		WithTag("sensors", len(worlds.Sensors)).
		Info("starting overlap server")

	overlaphttp.ListenAndServe(ctx,
		&http.Server{Addr: c.Addr, Handler: metrics.HTTPHandler(&service,
			overlaphttp.MetricsPathFormatter)},
		&http.Server{Addr: c.AdminAddr, Handler: &admin},
	)
}

func loadSensors(c conf) (config.Config, error) {
	if c.SensorsFile == "" {
		logs.Info("no sensors file, using the default sensor")
		return config.Default(), nil
	}

	return config.Load(c.SensorsFile)
}

func validateConf(c conf) error {
	if _, err := url.ParseRequestURI(c.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if c.ServerID == "" {
		return errors.New("server id is empty")
	}

	if c.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", c.FrameDuration)
	}

	return nil
}

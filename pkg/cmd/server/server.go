/*
	Copyright 2025 Markus Papenbrock
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	otlpruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/mpapenbr/weblynx-service-go/log"
	"github.com/mpapenbr/weblynx-service-go/pkg/config"
	"github.com/mpapenbr/weblynx-service-go/pkg/datalog"
	"github.com/mpapenbr/weblynx-service-go/pkg/endpoints/api"
	"github.com/mpapenbr/weblynx-service-go/pkg/ingest/tcp"
	"github.com/mpapenbr/weblynx-service-go/pkg/kvstore"
	"github.com/mpapenbr/weblynx-service-go/pkg/model"
	"github.com/mpapenbr/weblynx-service-go/pkg/processing/race"
	"github.com/mpapenbr/weblynx-service-go/pkg/publish/natspub"
	"github.com/mpapenbr/weblynx-service-go/pkg/utils/broadcast"
	"github.com/mpapenbr/weblynx-service-go/pkg/utils/conncheck"
	"github.com/mpapenbr/weblynx-service-go/pkg/view"
)

const (
	flagDelayedDisplay = "delayed-display-seconds"
	flagHalfLapMode    = "half-lap-mode"
)

var appConfig config.Config // holds processed config values

//nolint:funlen // by design
func NewServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "receives timing data and provides the race data api",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			appConfig = config.Config{
				PrintMessage: config.PrintMessage,
				LapCounter: config.LapCounterSettings{
					DelayedDisplaySeconds: config.DelayedDisplaySecs,
					HalfLapModeEnabled:    config.HalfLapModeEnabled,
				},
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return startServer(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&config.TimingAddr,
		"timing-addr",
		":1950",
		"listen address for the timing port")
	cmd.Flags().StringVar(&config.ResultsAddr,
		"results-addr",
		":1951",
		"listen address for the results port")
	cmd.Flags().IntVar(&config.ReadBufferSize,
		"read-buffer-size",
		config.DefaultReadBufferSize,
		"size of the read buffer per connection")
	cmd.Flags().StringVar(&config.HTTPAddr,
		"http-addr",
		":8080",
		"listen address for the http api")
	cmd.Flags().StringVar(&config.AdminToken,
		"admin-token",
		"",
		"token required for race control endpoints (empty disables the check)")
	cmd.Flags().IntVar(&config.DelayedDisplaySecs,
		flagDelayedDisplay,
		config.DefaultDelayedDisplaySeconds,
		"seconds a changed lap count is held back")
	cmd.Flags().BoolVar(&config.HalfLapModeEnabled,
		flagHalfLapMode,
		false,
		"enables the half lap handling on race start")
	cmd.Flags().BoolVar(&config.EnableDataLogging,
		"enable-data-logging",
		false,
		"writes all received data to the data log")
	cmd.Flags().BoolVar(&config.EnableLiveRaceInfo,
		"enable-live-race-info",
		false,
		"writes the current standings periodically to a file")
	cmd.Flags().StringVar(&config.LiveInfoInterval,
		"live-info-interval",
		"5s",
		"interval for writing the live race info")
	cmd.Flags().StringVar(&config.DataLogDir,
		"data-log-dir",
		"log",
		"directory for the data log and live race info files")
	cmd.Flags().StringVar(&config.NatsURL,
		"nats-url",
		"",
		"if set, race updates are published to this nats server")
	cmd.Flags().StringVar(&config.NatsSubject,
		"nats-subject",
		"weblynx.race",
		"subject for race updates")
	cmd.Flags().StringVar(&config.KVBucket,
		"kv-bucket",
		"",
		"jetstream kv bucket for key values (requires nats-url, default in memory)")
	cmd.Flags().StringVar(&config.ShutdownTimeout,
		"shutdown-timeout",
		"5s",
		"max duration for a graceful shutdown")
	cmd.Flags().StringVar(&config.WaitForServices,
		"wait-for-services",
		"15s",
		"duration to wait for other services to be ready")
	cmd.Flags().BoolVar(&config.EnableTelemetry,
		"enable-telemetry",
		false,
		"enables telemetry")
	cmd.Flags().StringVar(&config.TelemetryEndpoint,
		"telemetry-endpoint",
		"localhost:4317",
		"endpoint that receives open telemetry data (stdout prints to stdout)")
	cmd.Flags().BoolVar(&config.PrintMessage,
		"print-message",
		false,
		"if true and log level is debug, the decoded message will be printed")
	return cmd
}

type services struct {
	nc        *nats.Conn
	store     kvstore.Store
	rawLogger *datalog.RawLogger
	telemetry *config.Telemetry
}

//nolint:funlen,cyclop // by design
func startServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := &services{}
	defer svc.close()
	if err := svc.setup(ctx); err != nil {
		log.Error("services could not be initialized", log.ErrorField(err))
		return err
	}

	source := make(chan *model.RaceData)
	updates := broadcast.NewBroadcastServer("race", source)

	opts := []race.Option{
		race.WithLapCounterSettings(appConfig.LapCounter),
		race.WithPublishChannels(source),
		race.WithPrintMessage(appConfig.PrintMessage),
	}
	if svc.rawLogger != nil {
		opts = append(opts,
			race.WithRawDataLogger(svc.rawLogger),
			race.WithStartListLogger(svc.rawLogger))
	}
	mgr := race.NewManager(opts...)
	watchLapCounterSettings(mgr)

	var wg sync.WaitGroup
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	if config.EnableLiveRaceInfo {
		w := datalog.NewLiveWriter(config.DataLogDir, updates.Subscribe(),
			datalog.WithLiveInterval(
				config.ParseDurationOr(config.LiveInfoInterval, datalog.DefaultLiveInterval)),
			datalog.WithInitialState(mgr.Snapshot()))
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(workerCtx)
		}()
	}
	if svc.nc != nil {
		pub := natspub.NewPublisher(svc.nc, config.NatsSubject,
			natspub.WithConverter(
				viewConverter(workerCtx, svc.store, mgr.LapCounterSettings, log.Default())))
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub.Run(workerCtx, updates.Subscribe())
		}()
	}

	ingest := tcp.NewServer(mgr,
		tcp.WithListener(tcp.ListenerTiming, config.TimingAddr),
		tcp.WithListener(tcp.ListenerResults, config.ResultsAddr),
		tcp.WithReadBufferSize(config.ReadBufferSize),
		tcp.WithShutdownTimeout(
			config.ParseDurationOr(config.ShutdownTimeout, tcp.DefaultShutdownTimeout)))
	if err := ingest.Start(ctx); err != nil {
		log.Error("tcp listeners could not be started", log.ErrorField(err))
		updates.Close()
		return err
	}

	apiServer := api.NewServer(
		api.WithRaceState(mgr),
		api.WithKeyValueStore(svc.store),
		api.WithUpdates(updates),
		api.WithAdminToken(config.AdminToken))
	httpServer := newHTTPServer(config.HTTPAddr, apiServer.Handler(), updates)
	httpErr := make(chan error, 1)
	go func() {
		log.Info("Starting http server", log.String("addr", config.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
		close(httpErr)
	}()
	log.Info("Server started")
	setupGoRoutinesDump()

	var runErr error
	select {
	case <-ctx.Done():
		log.Debug("Got signal")
	case err, ok := <-httpErr:
		if ok {
			log.Error("http server failed", log.ErrorField(err))
			runErr = err
		}
	}

	timeout := config.ParseDurationOr(config.ShutdownTimeout, tcp.DefaultShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := ingest.Shutdown(shutdownCtx); err != nil {
		log.Warn("tcp shutdown", log.ErrorField(err))
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", log.ErrorField(err))
	}
	cancelWorkers()
	updates.Close()
	wg.Wait()
	log.Info("Server terminated")
	return runErr
}

// viewConverter publishes the race data view sorted by place.
// Key values which cannot be read are left out.
func viewConverter(
	ctx context.Context,
	store kvstore.Store,
	settings func() config.LapCounterSettings,
	l *log.Logger,
) natspub.Converter {
	return func(rd *model.RaceData) any {
		kv, err := store.All(ctx)
		if err != nil {
			l.Warn("could not read key values", log.ErrorField(err))
		}
		return view.NewRaceData(rd, settings(), kv, view.SortByPlace, time.Now())
	}
}

// newHTTPServer closes updates on shutdown. Open race event streams end
// with their source, otherwise Shutdown waits for them until the deadline.
func newHTTPServer(
	addr string,
	handler http.Handler,
	updates broadcast.BroadcastServer[*model.RaceData],
) *http.Server {
	//nolint:gosec // no read timeouts for event streams
	ret := &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	ret.RegisterOnShutdown(updates.Close)
	return ret
}

func (s *services) setup(ctx context.Context) error {
	if config.EnableTelemetry {
		log.Info("Enabling telemetry")
		var err error
		if s.telemetry, err = config.SetupTelemetry(ctx); err != nil {
			log.Warn("Could not setup telemetry", log.ErrorField(err))
		}
		err = otlpruntime.Start(otlpruntime.WithMinimumReadMemStatsInterval(time.Second))
		if err != nil {
			log.Warn("Could not start runtime metrics", log.ErrorField(err))
		}
	}
	if config.NatsURL != "" {
		if err := waitForRequiredServices(ctx); err != nil {
			return err
		}
		nc, err := nats.Connect(config.NatsURL, nats.Name("weblynx-service"))
		if err != nil {
			return fmt.Errorf("connect to nats: %w", err)
		}
		s.nc = nc
		log.Info("Connected to nats", log.String("url", nc.ConnectedUrlRedacted()))
	}
	if config.KVBucket != "" {
		if s.nc == nil {
			return errors.New("kv-bucket requires nats-url")
		}
		store, err := kvstore.NewJetStreamStore(ctx, s.nc, config.KVBucket)
		if err != nil {
			return err
		}
		s.store = store
	} else {
		s.store = kvstore.NewMemoryStore()
	}
	if config.EnableDataLogging {
		s.rawLogger = datalog.NewRawLogger(config.DataLogDir)
		log.Info("Data logging enabled", log.String("dir", config.DataLogDir))
	}
	return nil
}

func (s *services) close() {
	if s.rawLogger != nil {
		s.rawLogger.Close()
		if n := s.rawLogger.Dropped(); n > 0 {
			log.Warn("data log entries dropped", log.Int64("count", n))
		}
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			log.Warn("nats drain", log.ErrorField(err))
		}
	}
	if s.telemetry != nil {
		s.telemetry.Shutdown()
	}
}

// watchLapCounterSettings applies changed lap counter settings of the config file
// to the running manager.
func watchLapCounterSettings(mgr *race.Manager) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		current := mgr.LapCounterSettings()
		next := current
		if viper.IsSet(flagDelayedDisplay) {
			next.DelayedDisplaySeconds = viper.GetInt(flagDelayedDisplay)
		}
		if viper.IsSet(flagHalfLapMode) {
			next.HalfLapModeEnabled = viper.GetBool(flagHalfLapMode)
		}
		if next != current {
			log.Info("config file changed", log.String("file", e.Name))
			mgr.SetLapCounterSettings(next)
		}
	})
	viper.WatchConfig()
}

func waitForRequiredServices(ctx context.Context) error {
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil {
		log.Warn("Invalid duration value. Setting default 60s", log.ErrorField(err))
		timeout = 60 * time.Second
	}
	addr := conncheck.ExtractFromNatsURL(config.NatsURL)
	if addr == "" {
		return nil
	}
	log.Debug("Waiting for connection checks to return")
	if err := conncheck.WaitForTCP(ctx, addr, timeout); err != nil {
		return fmt.Errorf("required services not ready: %w", err)
	}
	log.Debug("Required services are available")
	return nil
}

func setupGoRoutinesDump() {
	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGQUIT)
		buf := make([]byte, 1<<20)
		for {
			<-sigs
			stacklen := runtime.Stack(buf, true)
			fmt.Printf("=== received SIGQUIT ===\n*** goroutine dump...\n%s\n*** end\n",
				buf[:stacklen])
		}
	}()
}

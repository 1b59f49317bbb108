// simbridge runs the simulation side of the environment bridge: it binds
// the control and telemetry ports, drives the simulation tick and reports
// lifecycle status back to the environment process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/simbridge/internal/bridge"
	"github.com/banshee-data/simbridge/internal/config"
	"github.com/banshee-data/simbridge/internal/journal"
	"github.com/banshee-data/simbridge/internal/lifecycle"
	"github.com/banshee-data/simbridge/internal/monitoring"
	"github.com/banshee-data/simbridge/internal/sim"
	"github.com/banshee-data/simbridge/internal/tick"
	"github.com/banshee-data/simbridge/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a .json, .yaml or .yml config file")
	listen      = flag.String("listen", "", "Debug HTTP listen address (overrides admin_listen)")
	replayPath  = flag.String("replay", "", "Replay a pcap capture through the bridge after startup")
	showVersion = flag.Bool("version", false, "Print version and exit")
	debugLog    = flag.Bool("debug", false, "Log recoverable runtime errors (diag stream)")
	traceLog    = flag.Bool("trace", false, "Log per-packet detail (trace stream)")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("simbridge"))
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	if *listen != "" {
		cfg.AdminListen = listen
	}

	level := cfg.GetLogLevel()
	if *debugLog && level == "ops" {
		level = "diag"
	}
	if *traceLog {
		level = "trace"
	}
	configureLogging(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := newDaemon(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := d.start(); err != nil {
		d.close()
		log.Fatalf("%v", err)
	}
	d.run(ctx, *replayPath)
	d.close()
	log.Printf("Graceful shutdown complete")
}

// configureLogging enables the monitoring streams up to level.
func configureLogging(level string) {
	w := monitoring.LogWriters{Ops: os.Stderr}
	switch level {
	case "trace":
		w.Trace = os.Stderr
		fallthrough
	case "diag":
		w.Diag = os.Stderr
	}
	monitoring.SetLogWriters(w)
}

// daemon wires the bridge, the simulation controller and the optional
// journal and debug server together.
type daemon struct {
	cfg       *config.Config
	sessionID string

	journal  *journal.Journal
	recorder *journal.Recorder

	events     *lifecycle.Publisher
	controller *sim.Controller
	bridge     *bridge.Bridge
	signals    *bridge.LifecycleSignals
	loop       *tick.Loop

	admin     *http.Server
	adminLn   net.Listener
	adminDone chan struct{}
}

func newDaemon(cfg *config.Config) (*daemon, error) {
	d := &daemon{
		cfg:       cfg,
		sessionID: uuid.NewString(),
		events:    lifecycle.NewPublisher(),
		loop:      &tick.Loop{Interval: cfg.GetTickInterval()},
	}

	opts := []bridge.Option{bridge.WithSessionID(d.sessionID)}
	if path := cfg.GetJournalPath(); path != "" {
		j, err := journal.Open(path)
		if err != nil {
			return nil, err
		}
		d.journal = j
		d.recorder = journal.NewRecorder(j, d.sessionID, journal.RecorderConfig{
			RecordPoses: cfg.GetRecordPoses(),
		})
		opts = append(opts, bridge.WithRecorder(d.recorder))
	}

	d.controller = sim.NewController(d.events, nil)
	d.bridge = bridge.New(bridge.Config{
		ControlAddr:   cfg.GetControlAddr(),
		TelemetryAddr: cfg.GetTelemetryAddr(),
		StatusAddr:    cfg.GetStatusAddr(),
		PollInterval:  cfg.GetPollInterval(),
	}, d.controller.Handlers(), opts...)
	d.signals = bridge.NewLifecycleSignals(d.events, d.bridge)
	return d, nil
}

// start binds the bridge and the debug listener, then announces the
// simulation as initialized.
func (d *daemon) start() error {
	if err := d.bridge.Start(); err != nil {
		return fmt.Errorf("failed to start bridge: %w", err)
	}

	if d.journal != nil {
		err := d.journal.BeginSession(journal.Session{
			ID:            d.sessionID,
			StartedAt:     d.bridge.StartedAt(),
			ControlAddr:   addrString(d.bridge.ControlAddr()),
			TelemetryAddr: addrString(d.bridge.TelemetryAddr()),
			StatusAddr:    d.cfg.GetStatusAddr(),
		})
		if err != nil {
			return err
		}
	}

	if listen := d.cfg.GetAdminListen(); listen != "" {
		if err := d.startAdmin(listen); err != nil {
			return err
		}
	}

	d.controller.Start()
	return nil
}

func (d *daemon) startAdmin(listen string) error {
	mux := http.NewServeMux()
	d.bridge.AttachAdminRoutes(mux)
	d.controller.AttachAdminRoutes(mux)
	if d.journal != nil {
		if err := d.journal.AttachAdminRoutes(mux); err != nil {
			return err
		}
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listen, err)
	}
	d.adminLn = ln
	d.admin = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	d.adminDone = make(chan struct{})

	go func() {
		defer close(d.adminDone)
		if err := d.admin.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			monitoring.Opsf("debug server error: %v", err)
		}
	}()
	monitoring.Opsf("debug server listening on http://%s/debug/", ln.Addr())
	return nil
}

// run drives the tick loop until ctx is cancelled, then stops the bridge.
func (d *daemon) run(ctx context.Context, replay string) {
	var wg sync.WaitGroup

	if interval := d.cfg.GetStatsInterval(); interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					d.bridge.LogStats()
				}
			}
		}()
	}

	if replay != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, err := d.bridge.Replay(ctx, replay)
			if err != nil {
				monitoring.Opsf("replay of %s failed: %v", replay, err)
				return
			}
			monitoring.Opsf("replayed %s: %d packets (%d control, %d telemetry, %d skipped)",
				replay, summary.Packets, summary.Control, summary.Telemetry, summary.Skipped)
		}()
	}

	d.loop.Run(ctx, d.bridge.Dispatch)
	wg.Wait()

	if err := d.bridge.Stop(); err != nil {
		monitoring.Opsf("bridge stop: %v", err)
	}
}

// close releases everything newDaemon and start acquired. The bridge is
// stopped before the journal so that no recorder write outlives it.
func (d *daemon) close() {
	d.signals.Close()
	if err := d.bridge.Stop(); err != nil {
		monitoring.Opsf("bridge stop: %v", err)
	}

	if d.admin != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := d.admin.Shutdown(shutdownCtx); err != nil {
			monitoring.Opsf("debug server shutdown error: %v", err)
			d.admin.Close()
		}
		<-d.adminDone
	}

	if d.recorder != nil {
		d.recorder.Close()
		if n := d.recorder.Dropped(); n > 0 {
			monitoring.Opsf("journal dropped %d rows", n)
		}
	}
	if d.journal != nil {
		if err := d.journal.Close(); err != nil {
			monitoring.Opsf("failed to close journal: %v", err)
		}
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/geomeasure/internal/api"
	"github.com/banshee-data/geomeasure/internal/config"
	"github.com/banshee-data/geomeasure/internal/db"
	"github.com/banshee-data/geomeasure/internal/geoid"
	"github.com/banshee-data/geomeasure/internal/gnss"
	"github.com/banshee-data/geomeasure/internal/inertial"
	"github.com/banshee-data/geomeasure/internal/measure"
	"github.com/banshee-data/geomeasure/internal/mode"
	"github.com/banshee-data/geomeasure/internal/serialmux"
	"github.com/banshee-data/geomeasure/internal/timeutil"
	"github.com/banshee-data/geomeasure/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to JSON config (defaults are used when empty)")
	listen      = flag.String("listen", "", "Listen address (overrides config)")
	dbPath      = flag.String("db", "", "SQLite database path (overrides config)")
	geoidGrid   = flag.String("geoid-grid", "", "Raw float32 geoid grid (overrides config)")
	geoidMeta   = flag.String("geoid-meta", "", "JSON sidecar describing the grid (overrides config)")
	gnssPort    = flag.String("gnss-port", "", "GNSS receiver serial port (overrides config)")
	imuPort     = flag.String("imu-port", "", "IMU serial port; may equal -gnss-port for a combined bridge")
	devMode     = flag.Bool("dev", false, "Use simulated GNSS and IMU devices")
	listPorts   = flag.Bool("list-ports", false, "List serial ports and exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func loadConfig() (*config.Config, error) {
	cfg := config.Defaults()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	override := func(dst **string, v string) {
		if v != "" {
			*dst = &v
		}
	}
	override(&cfg.Listen, *listen)
	override(&cfg.DBPath, *dbPath)
	override(&cfg.GeoidGridPath, *geoidGrid)
	override(&cfg.GeoidMetaPath, *geoidMeta)
	override(&cfg.GNSSPort, *gnssPort)
	override(&cfg.IMUPort, *imuPort)
	return cfg, cfg.Validate()
}

// loadGeoid never fails: a missing or malformed grid leaves the service on the
// fallback undulation.
func loadGeoid(cfg *config.Config) *geoid.Model {
	md, err := cfg.GeoidMetadata()
	if err != nil {
		log.Printf("geoid: %v", err)
		return geoid.Unloaded()
	}
	m, _ := geoid.LoadFile(cfg.GetGeoidGridPath(), md)
	return m
}

func logStatus(st mode.Status) {
	fix := "none"
	if st.Fix != nil && st.Height != nil {
		fix = fmt.Sprintf("%.7f,%.7f h=%.2f acc=%.2f", st.Fix.Latitude, st.Fix.Longitude, *st.Height, st.Fix.AccuracyOr(-1))
	}
	log.Printf("status: mode=%s fix=%s points=%d inertial(running=%t acc=%.2f samples=%d)",
		st.Mode, fix, st.Points, st.Inertial.Running, st.Inertial.Accuracy, st.Inertial.Samples)
	if st.SwitchAdvised {
		log.Printf("status: satellite accuracy degraded, consider switching to inertial mode")
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listPorts {
		ports, err := serialmux.ListPorts()
		if err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	log.Print(version.String())
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	clock := timeutil.RealClock{}
	model := loadGeoid(cfg)

	store, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	restored, err := store.ListPoints()
	if err != nil {
		log.Fatalf("failed to restore measurement log: %v", err)
	}
	log.Printf("restored %d points from %s", len(restored), cfg.GetDBPath())

	tracker := inertial.NewTracker(cfg.InertialConfig(), clock)
	ctrl := mode.NewController(cfg.ModeConfig(), model, tracker, measure.NewLog(restored...), clock)
	ctrl.AddObserver(db.NewRecorder(store))

	devs, err := openDevices(cfg, *devMode, clock)
	if err != nil {
		log.Fatalf("failed to open serial devices: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// one monitor routine per serial port
	for _, m := range devs.muxes {
		wg.Add(1)
		go func(m serialmux.SerialMuxInterface) {
			defer wg.Done()
			if err := m.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("%s: failed to monitor serial port: %v", m.Name(), err)
			}
			log.Printf("%s: monitor routine terminated", m.Name())
		}(m)
	}

	nmeaLines, imuLines, unsubscribe := devs.streams(ctx)
	defer unsubscribe()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gnss.Track(ctx, gnss.NewParser(clock), nmeaLines, ctrl); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("gnss: %v", err)
		}
		log.Print("gnss routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := inertial.Feed(ctx, imuLines, tracker); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("inertial: %v", err)
		}
		log.Print("inertial routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := clock.NewTicker(cfg.GetStatusInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				logStatus(ctrl.Status())
			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		srv := api.NewServer(ctrl, model, store, clock)
		mux := srv.ServeMux()
		srv.AttachAdminRoutes(mux)
		for _, m := range devs.muxes {
			m.AttachAdminRoutes(mux)
		}
		if err := store.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach db admin routes: %v", err)
		}

		server := &http.Server{
			Addr:              cfg.GetListen(),
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			log.Printf("listening on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start server: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	<-ctx.Done()
	// closing the ports unblocks the monitor routines' readers
	devs.Close()
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

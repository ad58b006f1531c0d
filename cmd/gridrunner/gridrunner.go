package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/gridrunner/internal/api"
	"github.com/banshee-data/gridrunner/internal/bridge"
	"github.com/banshee-data/gridrunner/internal/config"
	"github.com/banshee-data/gridrunner/internal/console"
	"github.com/banshee-data/gridrunner/internal/linefollow"
	"github.com/banshee-data/gridrunner/internal/mapstore"
	"github.com/banshee-data/gridrunner/internal/monitoring"
	"github.com/banshee-data/gridrunner/internal/nav"
	"github.com/banshee-data/gridrunner/internal/proximity"
	"github.com/banshee-data/gridrunner/internal/serialmux"
	"github.com/banshee-data/gridrunner/internal/sim"
	"github.com/banshee-data/gridrunner/internal/streetmap"
	"github.com/banshee-data/gridrunner/internal/timeutil"
	"github.com/banshee-data/gridrunner/internal/turn"
	"github.com/banshee-data/gridrunner/internal/version"
)

var (
	port       = flag.String("port", "/dev/ttyUSB0", "Serial port of the motor and sensor controller (ignored with -sim)")
	baud       = flag.Int("baud", serialmux.DefaultBaudRate, "Serial baud rate")
	frame      = flag.String("frame", serialmux.DefaultFrame, "Serial data bits, parity and stop bits")
	simGrid    = flag.String("sim", "", "Run against a simulated COLSxROWS street grid instead of hardware, e.g. 3x3")
	dbPath     = flag.String("db", "gridrunner.db", "Map snapshot database")
	listen     = flag.String("listen", ":8080", "HTTP listen address (empty disables the server)")
	configPath = flag.String("config", "", "Tuning config JSON (defaults apply when empty)")
	start      = flag.String("start", "", "Starting intersection and heading as x,y,h (overrides start_pose)")
	loadName   = flag.String("load", "", "Load this snapshot at start-up")
	explore    = flag.Bool("explore", false, "Start exploring immediately")
	logDiag    = flag.Bool("log-diag", false, "Log planner and turn decisions to stderr")
	logTrace   = flag.Bool("log-trace", false, "Log per-sample detector values to stderr")
	showVer    = flag.Bool("version", false, "Print version and exit")
	migrateCmd = flag.String("migrate", "", "Run a schema migration action on -db (up, down or status) and exit")
)

// parseStart reads "x,y,h".
func parseStart(s string) (streetmap.Pose, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return streetmap.Pose{}, fmt.Errorf("start %q: want x,y,h", s)
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return streetmap.Pose{}, fmt.Errorf("start %q: %w", s, err)
		}
		v[i] = n
	}
	if v[2] < 0 || v[2] >= streetmap.NumHeadings {
		return streetmap.Pose{}, fmt.Errorf("start %q: heading %d out of range [0,7]", s, v[2])
	}
	return streetmap.Pose{X: v[0], Y: v[1], Heading: streetmap.Heading(v[2])}, nil
}

// parseGrid reads "COLSxROWS".
func parseGrid(s string) (cols, rows int, err error) {
	a, b, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("grid %q: want COLSxROWS", s)
	}
	if cols, err = strconv.Atoi(a); err != nil {
		return 0, 0, fmt.Errorf("grid %q: %w", s, err)
	}
	if rows, err = strconv.Atoi(b); err != nil {
		return 0, 0, fmt.Errorf("grid %q: %w", s, err)
	}
	if cols < 1 || rows < 1 || cols*rows < 2 {
		return 0, 0, fmt.Errorf("grid %q: need at least two intersections", s)
	}
	return cols, rows, nil
}

// setupLogging routes infrastructure logs and the core packages' ops
// stream to stderr, plus their diag and trace streams when enabled.
func setupLogging(stderr io.Writer, diag, trace bool) {
	monitoring.SetOutput(stderr)
	var d, tr io.Writer
	if diag {
		d = stderr
	}
	if trace {
		tr = stderr
	}
	streetmap.SetLogWriters(stderr, d, tr)
	linefollow.SetLogWriters(stderr, d, tr)
	turn.SetLogWriters(stderr, d, tr)
	nav.SetLogWriters(stderr, d, tr)
}

// startupCommands are queued before the runner starts.
func startupCommands(load string, explore bool) []string {
	var lines []string
	if load != "" {
		lines = append(lines, "load "+load)
	}
	if explore {
		lines = append(lines, "explore")
	}
	return lines
}

// runMigrate applies a schema migration action to an opened store and
// reports the resulting version.
func runMigrate(s *mapstore.Store, action string, w io.Writer) error {
	switch action {
	case "up":
		if err := s.MigrateUp(); err != nil {
			return err
		}
	case "down":
		if err := s.MigrateDown(); err != nil {
			return err
		}
	case "status":
	default:
		return fmt.Errorf("unknown migrate action %q: want up, down or status", action)
	}
	version, dirty, err := s.MigrateVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	fmt.Fprintf(w, "schema version %d (dirty: %v)\n", version, dirty)
	return nil
}

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version.String("gridrunner"))
		return
	}

	setupLogging(os.Stderr, *logDiag, *logTrace)

	if *migrateCmd != "" {
		store, err := mapstore.Open(*dbPath, nil)
		if err != nil {
			log.Fatalf("failed to open map store: %v", err)
		}
		err = runMigrate(store, *migrateCmd, os.Stdout)
		store.Close()
		if err != nil {
			log.Fatal(err)
		}
		return
	}

	tuning := config.DefaultTuningConfig()
	if *configPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(*configPath); err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}
	navCfg := nav.ConfigFromTuning(tuning)
	if *start != "" {
		pose, err := parseStart(*start)
		if err != nil {
			log.Fatal(err)
		}
		navCfg.Start = pose
	}

	clock := timeutil.RealClock{}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	var wg sync.WaitGroup

	mail := console.NewMailbox(console.DefaultMailboxSize)

	var (
		controller serialmux.SerialMuxInterface
		motion     nav.Motion
		link       *bridge.Link
	)
	if *simGrid != "" {
		cols, rows, err := parseGrid(*simGrid)
		if err != nil {
			log.Fatal(err)
		}
		w := sim.Grid(cols, rows)
		w.PlaceOnStreet(navCfg.Start.X, navCfg.Start.Y, navCfg.Start.Heading)
		motion = w
		controller = serialmux.NewDisabledSerialMux()
		log.Printf("simulating a %dx%d grid", cols, rows)
	} else {
		mux, err := serialmux.NewRealSerialMux(*port, serialmux.PortOptions{BaudRate: *baud, Frame: *frame})
		if err != nil {
			log.Fatalf("failed to open controller port: %v", err)
		}
		controller = mux
		link = bridge.NewLink(mux, clock, 0)
		if err := mux.Initialize(bridge.InitCommands(bridge.DefaultRateHz)...); err != nil {
			log.Fatalf("failed to initialize controller: %v", err)
		}
		log.Printf("initialized controller on %s", *port)

		sampler := proximity.NewSampler(link, clock, tuning.GetProximityPeriod())
		follower := linefollow.NewFollower(link, link, sampler, clock, linefollow.ConfigFromTuning(tuning))
		turner := turn.NewTurner(link, link, link, clock, turn.ConfigFromTuning(tuning))
		motion = nav.NewRobot(follower, turner)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("failed to monitor serial port: %v", err)
			}
			log.Print("monitor routine terminated")
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := link.Dispatcher().Serve(ctx, mux); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("telemetry routine: %v", err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			sampler.Run(ctx)
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := console.FeedLines(ctx, link.Commands(), mail, "serial", os.Stderr, nil); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("remote command routine: %v", err)
			}
		}()
	}
	defer controller.Close()

	store, err := mapstore.Open(*dbPath, clock)
	if err != nil {
		log.Fatalf("failed to open map store: %v", err)
	}
	defer store.Close()

	for _, line := range startupCommands(*loadName, *explore) {
		if _, err := mail.PostLine(line, "startup"); err != nil {
			log.Fatalf("startup command %q: %v", line, err)
		}
	}

	board := nav.NewStatusBoard()
	planner := nav.NewPlanner(nil, motion, navCfg)
	runner := nav.NewRunner(planner, mail, store, board, clock, os.Stdout)

	// stdin is never closed under a terminal, so this routine is not
	// waited for.
	go func() {
		if err := console.ReadLoop(ctx, os.Stdin, mail, "stdin", os.Stderr); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("console routine: %v", err)
		}
	}()

	if *listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()

			srv := api.NewServer(board, mail)
			mux := srv.ServeMux()
			srv.AttachAdminRoutes(mux)
			controller.AttachAdminRoutes(mux)
			if link != nil {
				link.AttachAdminRoutes(mux)
			}
			if err := store.AttachAdminRoutes(mux); err != nil {
				log.Printf("map store admin routes unavailable: %v", err)
			}

			server := &http.Server{
				Addr:    *listen,
				Handler: api.LoggingMiddleware(mux),
			}

			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("failed to start server: %v", err)
				}
			}()

			<-ctx.Done()
			log.Println("shutting down HTTP server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
				if err := server.Close(); err != nil {
					log.Printf("HTTP server force close error: %v", err)
				}
			}
			log.Printf("HTTP server routine stopped")
		}()
	}

	fmt.Fprint(os.Stderr, console.Help)
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("runner: %v", err)
	}
	stop()

	if link != nil {
		if err := link.Stop(); err != nil {
			log.Printf("failed to stop motors: %v", err)
		}
	}

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// dispatchd receives emergency dispatches, keeps them in arrival order,
// and fans them out to connected operator consoles over SSE and websocket.
// It also ships a watch mode that turns raw dispatcher session logs into
// structured console events.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/stratagem/dispatchd/internal/archive"
	"github.com/stratagem/dispatchd/internal/classifier"
	"github.com/stratagem/dispatchd/internal/config"
	"github.com/stratagem/dispatchd/internal/forward"
	"github.com/stratagem/dispatchd/internal/relay"
	"github.com/stratagem/dispatchd/internal/server"
	"github.com/stratagem/dispatchd/internal/store"
	"github.com/stratagem/dispatchd/internal/stream"
	"github.com/stratagem/dispatchd/internal/watcher"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "watch":
			runWatch(os.Args[2:])
			return
		case "history":
			runHistory(os.Args[2:])
			return
		case "version":
			fmt.Println("dispatchd", version)
			return
		}
	}

	// Default: run the relay daemon.
	runServe(os.Args[1:])
}

func runServe(args []string) {
	fs := flag.NewFlagSet("dispatchd", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Parse(args)

	if *showVersion {
		fmt.Println("dispatchd", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Log.Level)

	slog.Info("dispatchd starting", "version", version, "addr", cfg.Addr())

	if err := serve(cfg); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func serve(cfg *config.Config) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	opts := []relay.Option{}

	if cfg.Forward.URL != "" {
		fwd := forward.New(cfg.Forward.URL, cfg.Forward.Timeout.Duration)
		opts = append(opts, relay.WithForwarder(fwd, cfg.Forward.Timeout.Duration))
		slog.Info("downstream forwarding enabled", "url", cfg.Forward.URL)
	}

	var db *archive.DB
	if cfg.Archive.Enabled {
		var err error
		db, err = archive.Open(cfg.ArchivePath())
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer db.Close()
		opts = append(opts, relay.WithArchiver(db))
		slog.Info("archive opened", "path", cfg.ArchivePath())
	}

	svc := relay.New(store.New(), stream.NewRegistry(), opts...)
	srv := server.New(svc, cfg.Server)
	srv.Start(cfg.Addr())

	slog.Info("listening", "addr", cfg.Addr())

	// Notify systemd we are ready (sd_notify).
	sdNotify("READY=1")

	var watchdogCh <-chan time.Time
	if wdInterval := watchdogInterval(); wdInterval > 0 {
		// Ping at half the watchdog interval.
		ticker := time.NewTicker(wdInterval / 2)
		defer ticker.Stop()
		watchdogCh = ticker.C
		slog.Info("systemd watchdog enabled", "interval", wdInterval)
	}

	for {
		select {
		case <-watchdogCh:
			sdNotify("WATCHDOG=1")

		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			sdNotify("STOPPING=1")

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		}
	}
}

// --- watch subcommand ---

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	command := fs.String("cmd", "", "shell command to pipe session output from (default: stdin)")
	follow := fs.Bool("follow", false, "restart the command if it exits")
	verbose := fs.Bool("verbose", false, "surface unmatched lines as system notes")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	setupLogging("error") // quiet for console output

	var src watcher.LineSource
	switch {
	case *command == "":
		src = watcher.NewReaderSource(os.Stdin)
	case *follow:
		src = watcher.NewSupervisedSource(
			func() watcher.LineSource {
				return watcher.NewPipeSource("sh", "-c", *command)
			},
			5*time.Second, // restart wait
			0,             // unlimited restarts
		)
	default:
		src = watcher.NewPipeSource("sh", "-c", *command)
	}
	defer src.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	lines, err := src.Lines(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error starting source: %v\n", err)
		os.Exit(1)
	}

	sess := classifier.NewSession(*verbose || cfg.Classifier.Verbose)
	for line := range lines {
		ev := sess.Next(line)
		if ev == nil {
			continue
		}
		renderEvent(ev)
		if ev.Kind == classifier.KindSessionEnded {
			return
		}
	}
}

// renderEvent prints one classified session event to stdout.
func renderEvent(ev *classifier.Event) {
	switch ev.Kind {
	case classifier.KindReportStart:
		fmt.Println()
		fmt.Printf("┌ %s\n", ev.Text)
	case classifier.KindReportLine:
		fmt.Printf("│ %s\n", ev.Text)
	case classifier.KindUserTurn:
		fmt.Printf("you> %s\n", ev.Text)
	case classifier.KindAgentTurn:
		fmt.Printf("[%s] %s\n", ev.Agent, ev.Text)
	case classifier.KindAgentTransition:
		fmt.Printf(">> handling agent: %s\n", ev.Agent)
	case classifier.KindNodePulse:
		fmt.Printf("(%s) %s\n", ev.Node, ev.Text)
	case classifier.KindSystemNote:
		fmt.Printf("* %s\n", ev.Text)
	case classifier.KindSessionEnded:
		fmt.Println()
		fmt.Println("session ended.")
	}
}

// --- history subcommand ---

func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	last := fs.String("last", "24h", "time window (e.g. 24h, 7d, 30d)")
	status := fs.String("status", "", "filter by status (active, responding, resolved, cancelled)")
	priority := fs.String("priority", "", "filter by priority (critical, high, medium, low)")
	limit := fs.Int("limit", 50, "max records to show")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	setupLogging("error")

	db, err := archive.Open(cfg.ArchivePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening archive: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	window, err := parseDuration(*last)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --last value %q: %v\n", *last, err)
		os.Exit(1)
	}

	records, err := db.Query(archive.QueryFilter{
		Since:    time.Now().Add(-window),
		Status:   strings.ToLower(*status),
		Priority: strings.ToLower(*priority),
		Limit:    *limit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "query error: %v\n", err)
		os.Exit(1)
	}

	if len(records) == 0 {
		fmt.Println("No records found.")
		return
	}

	for _, rec := range records {
		ts := rec.Timestamp.Local().Format("2006-01-02 15:04:05")
		fmt.Printf("%s  [%s] %-10s %s\n", ts, rec.Priority.Label(), rec.Status, rec.Title)
		if rec.Address != "" {
			fmt.Printf("             Address: %s\n", rec.Address)
		}
		if rec.Description != "" {
			// Print the first line of the description as a brief.
			brief := strings.SplitN(rec.Description, "\n", 2)
			fmt.Printf("             %s\n", brief[0])
		}
		fmt.Println()
	}
	fmt.Printf("Total: %d record(s)\n", len(records))
}

// parseDuration extends time.ParseDuration with support for "d" (days) suffix.
func parseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		s = strings.TrimSuffix(s, "d")
		var days int
		if _, err := fmt.Sscanf(s, "%d", &days); err != nil {
			return 0, fmt.Errorf("invalid days format: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// --- sd_notify support ---

// sdNotify sends a notification to systemd via the NOTIFY_SOCKET.
// This is a minimal implementation that doesn't require a C dependency.
func sdNotify(state string) {
	socketAddr := os.Getenv("NOTIFY_SOCKET")
	if socketAddr == "" {
		return
	}

	conn, err := net.Dial("unixgram", socketAddr)
	if err != nil {
		slog.Debug("sd_notify: failed to connect", "error", err)
		return
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(state)); err != nil {
		slog.Debug("sd_notify: failed to send", "error", err)
	}
}

// watchdogInterval reads WATCHDOG_USEC from the environment and returns the
// watchdog interval as a time.Duration. Returns 0 if not set.
func watchdogInterval() time.Duration {
	usecStr := os.Getenv("WATCHDOG_USEC")
	if usecStr == "" {
		return 0
	}
	var usec int64
	if _, err := fmt.Sscanf(usecStr, "%d", &usec); err != nil {
		return 0
	}
	return time.Duration(usec) * time.Microsecond
}

// --- utilities ---

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// Command formcoach runs the coaching session server: it loads a validation
// ruleset, resolves the reference demonstration video, and serves the
// detector-facing ingestion and UI-facing session API.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kinetic-data/formcoach/internal/api"
	"github.com/kinetic-data/formcoach/internal/config"
	"github.com/kinetic-data/formcoach/internal/media"
	"github.com/kinetic-data/formcoach/internal/ruleset"
	"github.com/kinetic-data/formcoach/internal/session"
	"github.com/kinetic-data/formcoach/internal/storage/sqlite"
	"github.com/kinetic-data/formcoach/internal/timeutil"
)

var (
	listen      = flag.String("listen", ":8080", "Listen address")
	dbPath      = flag.String("db", "formcoach.db", "Session database path (empty disables persistence)")
	rulesetPath = flag.String("ruleset", "", "Validation ruleset JSON (required)")
	tuningPath  = flag.String("tuning", "", "Tuning config JSON (defaults to built-in values)")
	videoDir    = flag.String("video-dir", "assets", "Directory probed for the reference video")
	videoFile   = flag.String("video", "", "User-supplied reference video (fallback after probing)")
	verbose     = flag.Bool("v", false, "Enable diagnostic logging")
	trace       = flag.Bool("trace", false, "Enable per-frame trace logging")
)

func main() {
	flag.Parse()

	ops := io.Writer(os.Stderr)
	var diag, traceW io.Writer
	if *verbose {
		diag = os.Stderr
	}
	if *trace {
		diag = os.Stderr
		traceW = os.Stderr
	}
	session.SetLogWriters(ops, diag, traceW)
	media.SetLogWriter(ops)

	if *rulesetPath == "" {
		log.Fatal("-ruleset is required")
	}
	rules, err := ruleset.Load(*rulesetPath)
	if err != nil {
		log.Fatalf("failed to load ruleset: %v", err)
	}
	log.Printf("loaded ruleset %q with %d steps", rules.ExerciseName, len(rules.Steps))

	tuning := config.EmptyTuningConfig()
	if *tuningPath != "" {
		tuning, err = config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	} else if cfg, err := config.LoadTuningConfig(config.DefaultConfigPath); err == nil {
		tuning = cfg
	}

	var store *sqlite.Store
	if *dbPath != "" {
		store, err = sqlite.NewStore(*dbPath)
		if err != nil {
			log.Fatalf("failed to open session store: %v", err)
		}
		defer store.Close()
	}

	clock := timeutil.RealClock{}

	// Resolve the reference video by probing conventional filenames, then
	// the user-supplied file. No video at all is a supported degraded mode:
	// scoring proceeds self-paced without the timeline gate.
	var video media.VideoController
	if path := media.ResolveVideoPath(*videoDir, *videoFile); path != "" {
		log.Printf("reference video: %s", path)
		video = media.NewPlaybackClock(clock)
	} else {
		log.Printf("no reference video found; running self-paced")
	}

	speaker := media.NewDuckingSpeaker(
		media.LogSpeech{}, video,
		tuning.GetSpeechRate(), tuning.GetSpeechVolume(), tuning.GetDuckedVolume(),
	)

	machine := session.NewMachine(rules, tuning)
	runner := session.NewRunner(session.RunnerConfig{
		Machine:      machine,
		Clock:        clock,
		Video:        video,
		Speaker:      speaker,
		Store:        store,
		MaxFrameRate: tuning.GetMaxFrameRate(),
	})
	defer runner.Teardown()

	server := &http.Server{
		Addr:    *listen,
		Handler: api.NewServer(runner, store, tuning).ServeMux(),
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("listening on %s", *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-done
	fmt.Fprintln(os.Stderr, "shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

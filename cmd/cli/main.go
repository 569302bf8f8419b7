package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/himanishpuri/SubPrint/pkg/logger"
	"github.com/himanishpuri/SubPrint/pkg/subprint"
	"github.com/himanishpuri/SubPrint/pkg/subprint/storage"
)

// Global flags
var (
	dbPath      string
	tempDir     string
	badgerDir   string
	postgresDSN string
	useBadger   bool
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func registerGlobalFlags() {
	flag.StringVar(&dbPath, "db", getEnvOrDefault("SUBPRINT_DB_PATH", storage.DefaultDBFile), "Path to the SQLite database file")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("SUBPRINT_TEMP_DIR", os.TempDir()), "Directory for temporary audio conversion files")
	flag.StringVar(&postgresDSN, "postgres", getEnvOrDefault("SUBPRINT_POSTGRES_DSN", ""), "PostgreSQL DSN (replaces SQLite when set)")
	flag.StringVar(&badgerDir, "badger", getEnvOrDefault("SUBPRINT_BADGER_DIR", ""), "Directory of the badger term index")
	flag.BoolVar(&useBadger, "badger-mem", false, "Use an in-memory badger term index rebuilt on start")
}

// createService creates a new SubPrint service with configured options
func createService() (subprint.Service, error) {
	opts := []subprint.Option{
		subprint.WithDBPath(dbPath),
		subprint.WithTempDir(tempDir),
	}
	if postgresDSN != "" {
		opts = append(opts, subprint.WithPostgres(postgresDSN))
	}
	if badgerDir != "" || useBadger {
		opts = append(opts, subprint.WithBadgerIndex(badgerDir))
	}
	return subprint.NewService(opts...)
}

func mustService() subprint.Service {
	svc, err := createService()
	if err != nil {
		fmt.Printf("❌ Failed to create service: %v\n", err)
		logger.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	return svc
}

func main() {
	_ = godotenv.Load()
	registerGlobalFlags()
	flag.Usage = printUsage
	flag.Parse()

	log := logger.GetLogger()

	args := flag.Args()
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]
	log.Infof("Executing command: %s", command)

	switch command {
	case "add":
		handleAdd(args[1:])
	case "match":
		handleMatch(args[1:])
	case "list":
		handleList()
	case "delete":
		handleDelete(args[1:])
	case "index":
		handleIndex(args[1:])
	case "export":
		handleExport(args[1:])
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// splitPositional separates leading positional arguments from the flags
// that follow them.
func splitPositional(args []string) (positional, flags []string) {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			return positional, args[i:]
		}
		positional = append(positional, arg)
	}
	return positional, nil
}

func handleAdd(args []string) {
	log := logger.GetLogger()

	positional, flagArgs := splitPositional(args)
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	title := addCmd.String("title", "", "Track title (required)")
	artist := addCmd.String("artist", "", "Artist name (required)")
	addCmd.Parse(flagArgs)

	if len(positional) != 1 || *title == "" || *artist == "" {
		fmt.Println("Usage: subprint add <audio_file> --title <title> --artist <artist>")
		os.Exit(1)
	}
	audioPath := positional[0]
	log.Infof("Adding track: '%s' by '%s' from file: %s", *title, *artist, audioPath)

	svc := mustService()
	defer svc.Close()

	fmt.Println("🎵 Processing audio file...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ref, err := svc.AddTrack(ctx, audioPath, *title, *artist)
	if err != nil {
		fmt.Printf("\n❌ Failed to add track: %v\n", err)
		log.Errorf("AddTrack failed: %v", err)
		os.Exit(1)
	}

	fmt.Println("\n✅ Successfully added track to database!")
	fmt.Printf("   ID:      %s\n", ref)
	fmt.Printf("   Title:   %s\n", *title)
	fmt.Printf("   Artist:  %s\n", *artist)
}

func handleMatch(args []string) {
	log := logger.GetLogger()

	positional, flagArgs := splitPositional(args)
	matchCmd := flag.NewFlagSet("match", flag.ExitOnError)
	verbose := matchCmd.Bool("v", false, "Print per-plan statistics")
	matchCmd.Parse(flagArgs)

	if len(positional) != 1 {
		fmt.Println("Usage: subprint match <audio_file> [-v]")
		os.Exit(1)
	}
	audioPath := positional[0]

	svc := mustService()
	defer svc.Close()

	fmt.Println("🔍 Analyzing audio file...")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report, err := svc.Match(ctx, audioPath)
	if err != nil {
		fmt.Printf("\n❌ Failed to match: %v\n", err)
		log.Errorf("Match failed: %v", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Println("\nPlans:")
		for _, p := range report.Plans {
			status := "done"
			switch {
			case p.Error != "":
				status = "error: " + p.Error
			case p.Cancelled:
				status = "cancelled"
			}
			fmt.Printf("  %d %-9s iterations=%d candidates=%d verified=%d hits=%d best=%d (%s)\n",
				p.ID, p.Name, p.Iterations, p.Candidates, p.Verified, p.Hits, p.BestBER, status)
		}
		fmt.Printf("  timings: probe=%v query=%v load=%v verify=%v total=%v\n",
			report.Timings.Probe, report.Timings.Query, report.Timings.Load, report.Timings.Verify, report.Timings.Total)
	}

	if len(report.Results) == 0 {
		fmt.Println("\n❌ No matches found in database")
		return
	}

	fmt.Printf("\n✅ Found %d match(es)!\n\n", len(report.Results))
	maxDisplay := min(10, len(report.Results))
	for i, r := range report.Results[:maxDisplay] {
		fmt.Printf("%d. \"%s\" by %s (ID: %s)\n", i+1, r.Title, r.Artist, r.ReferenceID)
		fmt.Printf("   BER: %d | Confidence: %.1f%% | Offset: %dms | Plan: %d\n",
			r.BER, r.Confidence, r.OffsetMs, r.PlanID)
		fmt.Println()
	}
	if len(report.Results) > maxDisplay {
		fmt.Printf("... and %d more matches\n", len(report.Results)-maxDisplay)
	}
}

func handleList() {
	log := logger.GetLogger()

	svc := mustService()
	defer svc.Close()

	tracks, err := svc.ListTracks(context.Background())
	if err != nil {
		fmt.Printf("❌ Failed to list tracks: %v\n", err)
		log.Errorf("ListTracks failed: %v", err)
		os.Exit(1)
	}

	if len(tracks) == 0 {
		fmt.Println("\n📭 No tracks in database")
		return
	}

	fmt.Printf("\n📚 Found %d track(s):\n\n", len(tracks))
	for i, t := range tracks {
		fmt.Printf("%d. \"%s\" by %s (ID: %s)\n", i+1, t.Title, t.Artist, t.ReferenceID)
		if t.DurationMs > 0 {
			duration := t.DurationMs / 1000
			fmt.Printf("   Duration: %d:%02d | Sub-fingerprints: %d\n", duration/60, duration%60, t.Length)
		}
		fmt.Println()
	}
	log.Infof("Listed %d tracks", len(tracks))
}

func handleDelete(args []string) {
	log := logger.GetLogger()

	if len(args) < 1 {
		fmt.Println("Usage: subprint delete <track_id>")
		os.Exit(1)
	}
	ref := args[0]

	svc := mustService()
	defer svc.Close()

	ctx := context.Background()
	track, err := svc.GetTrack(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Printf("❌ Track not found (ID: %s)\n", ref)
		} else {
			fmt.Printf("❌ Failed to look up track: %v\n", err)
		}
		log.Warnf("Track %s lookup failed: %v", ref, err)
		os.Exit(1)
	}

	if err := svc.DeleteTrack(ctx, ref); err != nil {
		fmt.Printf("❌ Failed to delete track: %v\n", err)
		log.Errorf("DeleteTrack failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("\n✅ Successfully deleted track:\n")
	fmt.Printf("   ID:     %s\n", track.ReferenceID)
	fmt.Printf("   Title:  %s\n", track.Title)
	fmt.Printf("   Artist: %s\n", track.Artist)
}

func handleExport(args []string) {
	log := logger.GetLogger()

	if len(args) != 2 {
		fmt.Println("Usage: subprint export <audio_file> <output.txt>")
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	out, err := os.Create(args[1])
	if err != nil {
		fmt.Printf("❌ Failed to create output: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := svc.ExportSignature(ctx, args[0], out); err != nil {
		fmt.Printf("❌ Failed to export signature: %v\n", err)
		log.Errorf("ExportSignature failed: %v", err)
		os.Exit(1)
	}
	fmt.Printf("✅ Signature written to %s\n", args[1])
}

func printUsage() {
	fmt.Println("SubPrint - Audio Sub-Fingerprint CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --db <path>          Path to SQLite database (env: SUBPRINT_DB_PATH, default: subprint.sqlite3)")
	fmt.Println("  --temp <dir>         Temporary directory for audio conversion (env: SUBPRINT_TEMP_DIR)")
	fmt.Println("  --postgres <dsn>     Use PostgreSQL instead of SQLite (env: SUBPRINT_POSTGRES_DSN)")
	fmt.Println("  --badger <dir>       Serve term queries from a badger index (env: SUBPRINT_BADGER_DIR)")
	fmt.Println("  --badger-mem         Same, with an in-memory index rebuilt on start")
	fmt.Println("\nUsage:")
	fmt.Println("  subprint [global-options] add <audio_file> --title <title> --artist <artist>")
	fmt.Println("  subprint [global-options] match <audio_file> [-v]")
	fmt.Println("  subprint [global-options] list")
	fmt.Println("  subprint [global-options] delete <track_id>")
	fmt.Println("  subprint [global-options] index <dir> [--workers <n>] [--ext .wav,.mp3]")
	fmt.Println("  subprint [global-options] export <audio_file> <output.txt>")
	fmt.Println("\nExamples:")
	fmt.Println("  subprint --db mydb.sqlite3 add song.mp3 --title \"Song\" --artist \"Artist\"")
	fmt.Println("  subprint index ./library --workers 4")
	fmt.Println("  subprint match query.wav -v")
}

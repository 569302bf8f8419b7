package main

import (
	"flag"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/himanishpuri/SubPrint/pkg/logger"
	"github.com/himanishpuri/SubPrint/pkg/subprint"
	"github.com/himanishpuri/SubPrint/pkg/subprint/storage"
)

var (
	port           int
	dbPath         string
	tempDir        string
	postgresDSN    string
	badgerDir      string
	allowedOrigins string
	accessLog      bool
)

func registerFlags() {
	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("SUBPRINT_DB_PATH", storage.DefaultDBFile), "Path to SQLite database")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("SUBPRINT_TEMP_DIR", os.TempDir()), "Temporary directory")
	flag.StringVar(&postgresDSN, "postgres", getEnvOrDefault("SUBPRINT_POSTGRES_DSN", ""), "PostgreSQL DSN (replaces SQLite when set)")
	flag.StringVar(&badgerDir, "badger", getEnvOrDefault("SUBPRINT_BADGER_DIR", ""), "Directory of the badger term index")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
	flag.BoolVar(&accessLog, "access-log", false, "Log every request")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseOrigins(s string) []string {
	if s == "*" {
		return []string{"*"}
	}
	origins := strings.Split(s, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return origins
}

func main() {
	_ = godotenv.Load()
	registerFlags()
	flag.Parse()

	log := logger.GetLogger()

	// Choose the storage backend
	opts := []subprint.Option{
		subprint.WithDBPath(dbPath),
		subprint.WithTempDir(tempDir),
	}
	backend := "sqlite:" + dbPath
	if postgresDSN != "" {
		opts = append(opts, subprint.WithPostgres(postgresDSN))
		backend = "postgres"
	}
	if badgerDir != "" {
		opts = append(opts, subprint.WithBadgerIndex(badgerDir))
		backend += "+badger"
	}

	// Create SubPrint service
	service, err := subprint.NewService(opts...)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	// Create and start server
	server := NewServer(service, &ServerConfig{
		Port:           port,
		Backend:        backend,
		TempDir:        tempDir,
		AllowedOrigins: parseOrigins(allowedOrigins),
		AccessLog:      accessLog,
	})
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

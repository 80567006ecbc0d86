package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/tessera-data/tessera"
	"github.com/tessera-data/tessera/factory"
	"go.uber.org/zap"
)

// Server represents the HTTP server wrapping a federation engine
type Server struct {
	engine tessera.Engine
	mux    *http.ServeMux
}

// NewServer creates a new Server instance
func NewServer(engine tessera.Engine) *Server {
	return &Server{
		engine: engine,
		mux:    http.NewServeMux(),
	}
}

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() {
	s.mux.HandleFunc("/api/v1/federated_query", s.handleFederatedQuery)
	s.mux.HandleFunc("/api/v1/validate", s.handleValidate)
	s.mux.HandleFunc("/api/v1/schema/", s.handleSchema)
	s.mux.HandleFunc("/api/v1/sources", s.handleSources)
	s.mux.HandleFunc("/api/v1/sources/", s.handleSources)
	s.mux.HandleFunc("/healthz", s.handleHealth)
}

// Start starts the HTTP server on the given port
func (s *Server) Start(port string) error {
	zap.S().Infow("starting server", "port", port)
	return http.ListenAndServe(":"+port, s.mux)
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	config, err := loadConfig()
	if err != nil {
		sugar.Fatalf("failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	engine, err := factory.NewEngine(ctx, config)
	cancel()
	if err != nil {
		sugar.Fatalf("failed to build federation engine: %v", err)
	}
	defer engine.Close(context.Background())

	server := NewServer(engine)
	server.RegisterRoutes()

	port := getEnv("PORT", "8080")
	if err := server.Start(port); err != nil {
		sugar.Fatalf("server error: %v", err)
	}
}

// loadConfig reads the YAML config file named by CONFIG_FILE, falling back
// to defaults tuned by individual environment variables.
func loadConfig() (*tessera.Config, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return tessera.LoadConfigFile(path)
	}

	config := tessera.DefaultConfig()
	config.Federation.RefreshInterval = time.Duration(getEnvInt("REFRESH_INTERVAL_SECONDS", 900)) * time.Second
	config.Federation.ConnectTimeout = time.Duration(getEnvInt("CONNECT_TIMEOUT_SECONDS", 10)) * time.Second
	config.Federation.FetchTimeout = time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 30)) * time.Second
	config.Federation.MaxRows = getEnvInt("MAX_ROWS", 10000)
	config.Snapshot.Store = getEnv("SNAPSHOT_STORE", "memory")
	config.Snapshot.S3.Bucket = getEnv("SNAPSHOT_S3_BUCKET", "")
	config.Snapshot.S3.Prefix = getEnv("SNAPSHOT_S3_PREFIX", "snapshots")
	config.Snapshot.S3.Region = getEnv("SNAPSHOT_S3_REGION", "")
	config.Snapshot.S3.Endpoint = getEnv("SNAPSHOT_S3_ENDPOINT", "")

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

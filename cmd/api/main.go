package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/mcclellann/fredEIR/pkg/config"
	"github.com/mcclellann/fredEIR/pkg/models"
	"github.com/mcclellann/fredEIR/pkg/projection"
	"github.com/mcclellann/fredEIR/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server holds the projector instance.
type Server struct {
	projector      *projection.Projector
	storage        store.Storage // Keep a reference to the storage to close it
	log            *logrus.Logger
	registry       *prometheus.Registry
	defaultProduct models.ProductType
}

func NewServer(s store.Storage, log *logrus.Logger, cfg *config.Config) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Server{
		projector:      projection.NewProjector(s, log, projection.NewMetrics(registry), cfg.Workers),
		storage:        s,
		log:            log,
		registry:       registry,
		defaultProduct: cfg.DefaultProductType,
	}
}

// Router wires every endpoint behind the request logging middleware.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(LogMiddleware(s.log))

	router.HandleFunc("/projections", s.listProjectionsHandler).Methods(http.MethodGet)
	router.HandleFunc("/projections", s.createProjectionHandler).Methods(http.MethodPost)
	router.HandleFunc("/projections/upload", s.uploadProjectionHandler).Methods(http.MethodPost)
	router.HandleFunc("/projections/{id}", s.getProjectionHandler).Methods(http.MethodGet)
	router.HandleFunc("/projections/{id}", s.deleteProjectionHandler).Methods(http.MethodDelete)
	router.HandleFunc("/projections/{id}/workbook", s.projectionWorkbookHandler).Methods(http.MethodGet)
	router.HandleFunc("/template", s.templateHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return router
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.SetLevel(cfg.LogLevel)

	// Initialize SQLite Store
	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	server := NewServer(sqliteStore, log, cfg)
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      server.Router(),
		ReadTimeout:  time.Second * 30,
		WriteTimeout: time.Minute * 5,
		IdleTimeout:  time.Second * 60,
	}

	go func() {
		log.Infof("Server starting on :%s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Server shutdown failed: %v", err)
		return
	}
	log.Info("Server gracefully stopped")
}

// Command eventgate runs the EventGate HTTP service: validates incoming
// events against JSON Schemas, authorizes them against a StreamConfig, and
// produces them to a broker.
package main

// file: cmd/eventgate/main.go

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/cowgnition/internal/config"
	"github.com/dkoosis/cowgnition/internal/errorevent"
	"github.com/dkoosis/cowgnition/internal/eventgate"
	"github.com/dkoosis/cowgnition/internal/httpapi"
	"github.com/dkoosis/cowgnition/internal/logging"
	"github.com/dkoosis/cowgnition/internal/producer"
	"github.com/dkoosis/cowgnition/internal/schema"
	"github.com/dkoosis/cowgnition/internal/streamconfig"
	"gopkg.in/yaml.v3"
)

func main() {
	configPath := flag.String("config", "", "path to an EventGate configuration YAML file")
	flag.Parse()

	logger := logging.GetLogger("eventgate")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("eventgate: failed to load configuration: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		log.Fatalf("eventgate: %v", err)
	}
}

func loadConfig(path string) (*config.Settings, error) {
	cfg := config.New()
	if path == "" {
		return cfg, nil
	}

	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to expand config path")
	}
	// #nosec G304 -- path is an operator-supplied flag, not request input.
	raw, err := os.ReadFile(expanded)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}
	return cfg, nil
}

// run wires every component and serves until a termination signal arrives,
// treating SIGHUP as a hot-reload of the schema cache and StreamConfig
// rather than a shutdown, per spec §5.
func run(cfg *config.Settings, logger logging.Logger) error {
	ctx := context.Background()

	resolver := schema.NewResolver(cfg.SchemaBaseURIs, cfg.SchemaFileExtension, cfg.AllowAbsoluteSchemaURIs)
	metaRegistry, err := schema.NewMetaRegistry(cfg.MetaSchemaIDRegex)
	if err != nil {
		return errors.Wrap(err, "invalid meta_schema_id_regex")
	}
	cache := schema.NewCache(resolver, nil, metaRegistry, logger)
	if err := cache.Precache(ctx, cfg.SchemaPrecacheURIs); err != nil {
		logger.Warn("One or more schemas failed to precache; they will be compiled on first use instead.", "error", err)
	}

	authorizer := streamconfig.NewAuthorizer(cfg.StreamConfigURI, "schema_title", logger)
	if err := authorizer.Load(ctx); err != nil {
		return errors.Wrap(err, "failed to load StreamConfig")
	}

	broker := producer.NewBroker(256, logger)
	defer broker.Close()
	dispatcher := producer.NewDispatcher(
		producer.NewGuaranteedProducer(broker),
		producer.NewHastyProducer(broker),
		logger,
	)

	var mapper eventgate.ErrorMapper
	if cfg.ErrorSchemaURI != "" && cfg.ErrorStream != "" {
		mapper = errorevent.NewMapper(cfg, logger)
	}

	gate := eventgate.NewGate(cfg, cache, authorizer, dispatcher, mapper, logger)

	info := httpapi.ServiceInfo{Name: cfg.GetServerName(), Version: cfg.ServiceVersion, Home: cfg.ServiceHome}
	api := httpapi.NewServer(gate, info, cfg.StrictInvalidDisposition)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: cfg.Server.RequestTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	serveErrChan := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server.", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrChan <- err
		}
	}()

	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				logger.Info("Received SIGHUP; reloading schema cache and StreamConfig.")
				cache.Reload()
				if err := authorizer.Load(ctx); err != nil {
					logger.Error("Failed to reload StreamConfig; previous snapshot remains in effect.", "error", err)
				}
				continue
			}
			logger.Info("Received shutdown signal.", "signal", sig)
			return shutdown(httpServer, cfg.Server.ShutdownTimeout, logger)
		case err := <-serveErrChan:
			return errors.Wrap(err, "HTTP server failed")
		}
	}
}

func shutdown(httpServer *http.Server, timeout time.Duration, logger logging.Logger) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "server shutdown error")
	}
	logger.Info("Server shutdown complete.")
	return nil
}

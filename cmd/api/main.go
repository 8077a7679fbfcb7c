package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/biximilien/Radiant-Sands/config"
	eventrepo "github.com/biximilien/Radiant-Sands/internal/repositories/event"
	"github.com/biximilien/Radiant-Sands/internal/repositories/tagging"
	venuerepo "github.com/biximilien/Radiant-Sands/internal/repositories/venue"
	"github.com/biximilien/Radiant-Sands/pkg/database"
	"github.com/biximilien/Radiant-Sands/pkg/events"
	"github.com/biximilien/Radiant-Sands/pkg/grouping"
	"github.com/biximilien/Radiant-Sands/pkg/kafka"
	"github.com/biximilien/Radiant-Sands/pkg/middleware"
	duplicateroutes "github.com/biximilien/Radiant-Sands/pkg/routes/duplicate"
	eventroutes "github.com/biximilien/Radiant-Sands/pkg/routes/event"
	"github.com/biximilien/Radiant-Sands/pkg/routes/health"
	searchroutes "github.com/biximilien/Radiant-Sands/pkg/routes/search"
	venueroutes "github.com/biximilien/Radiant-Sands/pkg/routes/venue"
	"github.com/biximilien/Radiant-Sands/pkg/saver"
	"github.com/biximilien/Radiant-Sands/pkg/search"
	"github.com/biximilien/Radiant-Sands/pkg/squash"
	"github.com/biximilien/Radiant-Sands/pkg/tracing"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(os.Stdout)

	tp, err := tracing.Init(cfg.AppName)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	db, err := database.Connect(ctx, database.ConnectConfig{
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		UserName:        cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := runMigrations(cfg, db, logger); err != nil {
		return err
	}

	var producer *kafka.Producer
	if cfg.KafkaProducerEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
	}

	emitter := events.NewEmitter(producer, logger)
	venues := venuerepo.NewRepository(db, logger)
	evts := eventrepo.NewRepository(db, logger)
	taggings := tagging.NewRepository(db, logger)

	var geocoder saver.Geocoder
	if cfg.GeocoderEnabled {
		geocoder = saver.NewHTTPGeocoder(cfg.GeocoderBaseURL, time.Duration(cfg.GeocoderTimeoutSeconds)*time.Second)
	}

	sav := saver.NewSaver(logger, db, venues, evts, geocoder, emitter)
	grouper := grouping.NewGrouper(venues, evts, logger)
	engine := squash.NewEngine(logger, emitter, venues, evts)
	facade := search.NewFacade(logger, venues, evts, cfg.SearchResultLimit)

	if err := registerDependencies(cfg, logger, venues, evts, taggings, emitter, sav, grouper, engine, facade); err != nil {
		return fmt.Errorf("failed to register dependencies: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	checker := health.NewChecker(db, version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	venueroutes.Register(api.Group("/venues"))
	eventroutes.Register(api.Group("/events"))
	duplicateroutes.Register(api.Group("/duplicates"))
	searchroutes.Register(api.Group("/search"))

	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second

	go func() {
		checker.SetReady(true)
		if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server stopped")
			stop()
		}
	}()

	logger.WithField("port", cfg.Port).Infof("%s listening on port %d", cfg.AppName, cfg.Port)

	<-ctx.Done()
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// newLogger writes structured log lines to the given writer
func newLogger(w *os.File) ectologger.Logger {
	encoder := json.NewEncoder(w)
	return ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		_ = encoder.Encode(msg)
	})
}

func runMigrations(cfg *config.Config, db database.DB, logger ectologger.Logger) error {
	driver, err := migratepg.WithInstance(db.Unsafe().DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	ms := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
	})
	return ms.Migrate(cfg.DatabaseName, driver)
}

func registerDependencies(
	cfg *config.Config,
	logger ectologger.Logger,
	venues *venuerepo.Repository,
	evts *eventrepo.Repository,
	taggings *tagging.Repository,
	emitter *events.Emitter,
	sav *saver.Saver,
	grouper *grouping.Grouper,
	engine *squash.Engine,
	facade *search.Facade,
) error {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return err
	}

	if err := ectoinject.RegisterInstance[*config.Config](container, cfg); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[ectologger.Logger](container, logger); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*venuerepo.Repository](container, venues); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*eventrepo.Repository](container, evts); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*tagging.Repository](container, taggings); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*events.Emitter](container, emitter); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*saver.Saver](container, sav); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*grouping.Grouper](container, grouper); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*squash.Engine](container, engine); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*search.Facade](container, facade); err != nil {
		return err
	}
	return nil
}

package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/conselhomais/portal/internal/config"
	"github.com/conselhomais/portal/internal/infrastructure/providers"
	"github.com/conselhomais/portal/internal/present/rest"
	"github.com/conselhomais/portal/internal/present/rest/middleware"
	"github.com/conselhomais/portal/internal/service"
	"github.com/conselhomais/portal/internal/usecase"
)

type options struct {
	Config string `short:"c" long:"config" description:"Path to the config file" default:"config.yaml"`
}

func main() {
	godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	conf, err := config.Load(opts.Config)
	if err != nil {
		slog.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if conf.Server.EnableTrace {
		cleanup, err := setupTraceProvider(conf.Server.TraceEndpoint)
		if err != nil {
			slog.Error("Failed to setup trace provider", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer cleanup()
	}

	db, err := providers.NewDatabase(conf.Server)
	if err != nil {
		slog.Error("Failed to connect database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := providers.MigrateDatabase(db); err != nil {
		slog.Error("Failed to migrate database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rdb := providers.NewRedis(conf.Server)
	cache := providers.NewLocalCache(conf.Server)
	store := providers.NewDocumentStore(db, rdb)

	auth := service.NewAuth(db, rdb, time.Duration(conf.Site.SessionTTLMinutes)*time.Minute)
	bridge := service.NewCredentialBridge(auth, conf.Site.AdminIdentifier)

	engine := service.NewEngine(store, cache, time.Duration(conf.Site.LoadTimeoutSeconds)*time.Second)
	gate := service.NewGate(auth, engine)

	mailer := service.NewSMTPMailer(conf.SMTP)
	notifier := service.NewNotifier(mailer, store)
	signal := service.NewSignalService(rdb)

	content := usecase.NewContentUsecase(store, engine)
	messages := usecase.NewMessageUsecase(store, engine, mailer, notifier)

	editor := service.NewRecipientEditor(
		time.Duration(conf.Site.RecipientFlushSeconds)*time.Second,
		content.UpdateRecipients,
	)
	engine.SetRecipientSink(editor.SyncFromRemote)

	ctx := context.Background()
	engine.Start(ctx)
	defer engine.Stop()

	gate.Start()
	defer gate.Stop()

	e := echo.New()
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware("portal"))
	}

	handler := rest.NewHandler(engine, gate, auth, bridge, editor, signal, content, messages)
	handler.RegisterRoutes(e, middleware.NewAuthMiddleware(auth))

	e.Logger.Fatal(e.Start(conf.Server.Listen))
}

func setupTraceProvider(endpoint string) (func(), error) {
	exporter, err := otlptracehttp.New(
		context.Background(),
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			slog.Error("Failed to shutdown trace provider", slog.String("error", err.Error()))
		}
	}
	return cleanup, nil
}

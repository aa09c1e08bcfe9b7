package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/chat-service/config"
	"github.com/cwrk-planet/chat-service/internal/service"
	grpcx "github.com/cwrk-planet/chat-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/chat-service/internal/transport/http"
	"github.com/cwrk-planet/chat-service/internal/transport/ws"
	"github.com/cwrk-planet/chat-service/pkg/logger"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting chat-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version,
		"store", cfg.Store.Driver, "broadcast", cfg.Broadcast.Driver)

	// --- tracing ---
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	// --- store ---
	ctx := context.Background()
	st, err := openStores(ctx, cfg.Store, cfg.Logging.Service)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.close()

	// --- broadcast ---
	bus, err := openBroadcaster(ctx, cfg.Broadcast)
	if err != nil {
		log.Fatalf("broadcast: %v", err)
	}
	defer func() { _ = bus.Close() }()

	// --- auth ---
	verifier, err := newVerifier(cfg.Auth)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	// --- services ---
	roomSvc := service.NewRoomService(st.rooms, st.products, st.messages)
	chatSvc := service.NewChatService(roomSvc, st.messages, bus).WithPublishTimeout(cfg.Broadcast.PublishTimeout)

	// --- HTTP ---
	wsServer := ws.NewServer(chatSvc, verifier)
	handler := httpx.NewHandler(roomSvc, chatSvc)
	router := httpx.NewRouter(
		httpx.RouterConfig{
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			MetricsEnabled: cfg.Metrics.Enabled,
			RequestTimeout: cfg.HTTP.RequestTimeout,
		},
		handler,
		verifier,
		wsServer.HandleWS,
		map[string]httpx.Pinger{
			"store":     httpx.PingFunc(st.ping),
			"broadcast": bus,
		},
	)
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	// --- gRPC ---
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcx.UnaryServerInterceptor(cfg.GRPC.DefaultTimeout)),
		grpc.ChainStreamInterceptor(grpcx.StreamServerInterceptor()),
	)
	health := grpcx.Register(grpcServer, grpcx.NewServer(chatSvc, verifier, cfg.GRPC.InternalKey))

	// --- run both servers ---
	errCh := make(chan error, 2)

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			errCh <- err
			return
		}
		slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", slog.Any("err", err))
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health.Shutdown()
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctxShutdown.Done():
		// live streams never end on their own
		grpcServer.Stop()
	}
	if err := httpSrv.Shutdown(ctxShutdown); err != nil {
		slog.Error("http shutdown", slog.Any("err", err))
	}
	// Let stored messages finish fanning out before the broadcaster closes.
	chatSvc.Wait()
	slog.Info("stopped")
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/rl1809/split-market/internal/adapter/auth"
	"github.com/rl1809/split-market/internal/adapter/handler"
	"github.com/rl1809/split-market/internal/adapter/tokenbus"
)

const consumerPrefetch = 16

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC APIs, the token result consumer and the reconciler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := wire(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	authn, err := auth.NewAuthenticator(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	// Token results
	if a.conn != nil {
		ch, err := a.conn.Channel()
		if err != nil {
			return fmt.Errorf("open consume channel: %w", err)
		}
		if err := ch.Qos(consumerPrefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
		deliveries, err := ch.Consume(a.topology.ResultsQueue, cfg.AppName, false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume '%s': %w", a.topology.ResultsQueue, err)
		}
		consumer := tokenbus.NewResultConsumer(a.market, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx, deliveries); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("token result consumer stopped")
			}
		}()
		logger.WithField("queue", a.topology.ResultsQueue).Info("consuming token results")
	}

	// Reconciler
	scheduler := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
	)
	if _, err := scheduler.AddFunc(cfg.ReconcileSchedule, func() {
		sweepCtx, sweepCancel := context.WithTimeout(ctx, cfg.SagaTimeout)
		defer sweepCancel()
		sweep(sweepCtx, a.market)
	}); err != nil {
		return fmt.Errorf("schedule reconciler '%s': %w", cfg.ReconcileSchedule, err)
	}
	scheduler.Start()
	logger.WithField("schedule", cfg.ReconcileSchedule).Info("scheduled reconciler")

	// gRPC
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(authn.UnaryInterceptor))
	handler.NewGRPCHandler(a.market).Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}
	go func() {
		logger.Infof("gRPC server listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.WithError(err).Error("gRPC server error")
		}
	}()

	// HTTP
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(a.market, logger).Routes(authn),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.WithError(err).Error("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP shutdown")
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	<-scheduler.Stop().Done()
	logger.Info("reconciler stopped")

	cancel()
	wg.Wait()
	logger.Info("consumer stopped")
	return nil
}

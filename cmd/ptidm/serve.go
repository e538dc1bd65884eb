package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"pti/dm/internal/hub"
	"pti/dm/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve dialogues over gRPC, HTTP and websocket",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	c, err := build(cfg, logger, cfg.Session.Dir, true)
	if err != nil {
		return err
	}
	defer c.Close()

	h := hub.New(c.factory, store.New(), logger)

	gs := grpc.NewServer()
	hs := hub.RegisterGRPC(gs, h)
	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           hub.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("grpc listening", zap.String("addr", cfg.Server.GRPCAddr))
		return gs.Serve(lis)
	})
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		hs.SetServingStatus(hub.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		h.Shutdown()

		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)

		done := make(chan struct{})
		go func() {
			gs.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-sctx.Done():
			gs.Stop()
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

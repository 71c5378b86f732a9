package app

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/specialistvlad/segmentgridgo/internal/trainer"
	"google.golang.org/grpc"
)

// serveTrainer exposes the in-process forest over gRPC until ctx is done.
func (a *App) serveTrainer(ctx context.Context) error {
	cfg := a.config.Trainer
	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}
	return a.serveTrainerOn(ctx, lis)
}

func (a *App) serveTrainerOn(ctx context.Context, lis net.Listener) error {
	svc := trainer.NewForestService(a.config.Trainer.MaxModels)
	srv := trainer.NewServer(svc)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("🚀 Trainer listening.", "address", lis.Addr().String(), "trainer.max_models", a.config.Trainer.MaxModels)
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("trainer server: %w", err)
		}
		return nil
	case <-ctx.Done():
		a.logger.Info("🏁 Trainer shutting down.", "trainer.models", svc.Len())
		srv.GracefulStop()
		<-errCh
		return nil
	}
}

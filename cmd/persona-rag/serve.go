package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZanzyTHEbar/persona-rag/persona/generation"
	transport "github.com/ZanzyTHEbar/persona-rag/persona/transport/http"
	v1 "github.com/ZanzyTHEbar/persona-rag/persona/transport/http/v1"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		ingestFirst bool
		watch       bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, ingestFirst, watch)
		},
	}

	cmd.Flags().BoolVar(&ingestFirst, "ingest", false, "ingest the data directory before serving")
	cmd.Flags().BoolVar(&watch, "watch", false, "ingest new documents dropped into the data directory")
	return cmd
}

func (a *app) serve(ctx context.Context, ingestFirst, watch bool) error {
	stack, err := generation.NewStack(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	if ingestFirst {
		report, err := stack.Memory.Ingester().IngestDir(ctx)
		if err != nil {
			return err
		}
		a.logger.Info().
			Int("ingested", report.Ingested).
			Int("skipped", report.Skipped).
			Int("failed", report.Failed).
			Msg("Startup ingestion finished")
	}

	handler := v1.NewHandler(stack.Chat, stack.Memory, stack.DB, a.logger)
	server := transport.NewServer(a.cfg.Server, handler, a.logger)

	eg, gctx := errgroup.WithContext(ctx)

	eg.Go(server.Start)

	if watch {
		eg.Go(func() error { return stack.Memory.Ingester().Watch(gctx) })
	}

	eg.Go(func() error {
		<-gctx.Done()
		timeout := a.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

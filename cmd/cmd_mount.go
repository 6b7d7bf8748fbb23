package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brettbedarf/treefs/filesystem"
	"github.com/brettbedarf/treefs/internal/metrics"
	"github.com/brettbedarf/treefs/internal/util"
	"github.com/spf13/cobra"
)

type mountCommand struct {
	Source      string
	MetricsAddr string
}

func newMountCmd(a *app) *cobra.Command {
	c := &mountCommand{}
	cmd := &cobra.Command{
		Use:   "mount DIR",
		Short: "Mount a tree read only at DIR until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("metrics-addr") {
				c.MetricsAddr = a.cfg.MetricsAddr
			}
			return c.run(a.context(cmd), a, args[0])
		},
	}
	cmd.Flags().StringVar(&c.Source, "source", remoteSource,
		`Tree to mount: "remote", "local" or the name of a configured source`)
	cmd.Flags().StringVar(&c.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics at this address, e.g. :9090")
	return cmd
}

func (c *mountCommand) run(ctx context.Context, a *app, mnt string) error {
	logger := util.GetLogger("cmd")

	root, err := a.source(c.Source)
	if err != nil {
		return err
	}

	if c.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              c.MetricsAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", c.MetricsAddr).Msg("Metrics server listening")
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer func() {
			_ = metricsServer.Close()
		}()
	}

	server, err := filesystem.Mount(mnt, root, filesystem.OptionsFromConfig(a.cfg))
	if err != nil {
		return err
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(signalChan)

	go func() {
		select {
		case sig := <-signalChan:
			logger.Info().Str("signal", sig.String()).Msg("Received signal, unmounting filesystem")
		case <-ctx.Done():
		}
		if err := server.Unmount(); err != nil {
			logger.Error().Err(err).Msg("Failed to unmount filesystem")
		}
	}()

	server.Wait()
	logger.Info().Str("mountpoint", mnt).Msg("Filesystem unmounted")
	return nil
}

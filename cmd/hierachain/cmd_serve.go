package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/api"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/core"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/monitoring"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/network"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/state"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/vm"
)

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "Serve block execution over Arrow and ZeroMQ",
	Args:  cobra.NoArgs,
	Run:   serve,
}

func init() {
	cmdMain.AddCommand(cmdServe)
}

func serve(*cobra.Command, []string) {
	logger := newLogger()
	config, err := loadConfig(flagMain.Config)
	check(err)

	backend, closeBackend, err := openBackend(config.State, logger)
	check(err)
	defer closeBackend()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg, "hierachain")

	executor := core.NewBlockExecutor[*vm.Transaction](vm.Factory{}, config.Engine,
		core.WithLogger(logger),
		core.WithMetrics(metrics),
	)
	handler := api.NewBlockHandler(executor, backend, api.HandlerConfig{
		CacheSize: config.State.CacheSize,
		Commit:    true,
	}, logger)
	auth := api.NewAuthenticator(config.Auth, logger)

	if config.Server.MetricsAddr != "" {
		ms := monitoring.NewMetricsServer(config.Server.MetricsAddr, reg, logger)
		ms.StartAsync()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Stop(ctx)
		}()
	}

	if config.Server.ArrowAddr != "" {
		server := api.NewArrowServer(handler, auth, logger)
		server.SetMetrics(metrics)
		check(server.StartAsync(config.Server.ArrowAddr))
		defer server.Stop()
	}

	if config.Server.ZmqAddr != "" {
		endpoint := network.NewZmqEndpoint(config.Server.ZmqAddr, handler, auth, logger)
		endpoint.SetMetrics(metrics)
		check(endpoint.Start())
		defer endpoint.Stop()
	}

	logger.Info().
		Int("concurrency", config.Engine.Concurrency).
		Bool("deltas", config.Engine.EnableDeltas).
		Str("version", Version).
		Msg("node started")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info().Uint64("blocks", handler.Blocks()).Msg("shutting down")
}

// openBackend opens the configured state backend and seeds the genesis.
func openBackend(config StateConfig, logger zerolog.Logger) (state.Backend, func(), error) {
	var genesis = vm.Genesis(config.GenesisAccounts, config.GenesisBalance)
	if config.GenesisAccounts == 0 {
		genesis = nil
	}

	if config.BadgerDir == "" {
		logger.Info().Int("accounts", config.GenesisAccounts).Msg("using in-memory state")
		return state.NewMapView(genesis), func() {}, nil
	}

	db, err := state.OpenBadger(state.BadgerOptions(config.BadgerDir))
	if err != nil {
		return nil, nil, err
	}
	if genesis != nil {
		if err := db.Seed(genesis); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	logger.Info().Str("dir", config.BadgerDir).Int("accounts", config.GenesisAccounts).Msg("using badger state")
	return db, func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("close badger")
		}
	}, nil
}

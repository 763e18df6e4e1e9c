package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/agents/procurement"
	"github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/negotiation"
	"github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/api"
	configx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/pkg/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the Sentinell HTTP API. The mock supplier is mounted under
/supplier unless API_MOUNT_SUPPLIER=false.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.Logger.WithContext(ctx)

	apiCfg, err := configx.New[api.Config]("API")
	if err != nil {
		return err
	}
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := api.NewServer(a.supervisor, a.procurement, a.memory, version)
	if err != nil {
		return err
	}
	if apiCfg.MountSupplier {
		srv.Mount("/supplier", negotiation.NewHandler(a.exchange, a.rates, version))
	}

	if apiCfg.ExpireEvery > 0 {
		go sweepApprovals(ctx, a.procurement, apiCfg.ExpireEvery)
	}
	return srv.ListenAndServe(ctx, *apiCfg)
}

// sweepApprovals expires stale approval requests until ctx ends.
func sweepApprovals(ctx context.Context, svc *procurement.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.ExpireStale(ctx)
			if err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("approval sweep failed")
				continue
			}
			if n > 0 {
				log.Ctx(ctx).Info().Int("expired", n).Msg("approval sweep")
			}
		}
	}
}

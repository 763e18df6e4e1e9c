package main

import (
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/negotiation"
	toolx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/agent/tool"
	configx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/pkg/config"
)

var supplierAddr string

var supplierCmd = &cobra.Command{
	Use:   "supplier",
	Short: "Run the mock supplier as a standalone service",
	Long: `Run the mock supplier on its own listener so the engine can reach it
over HTTP (SENTINELL_REMOTE_SUPPLIERS=SUP-ACME=http://host:9090).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		exCfg, err := configx.New[negotiation.ExchangeConfig]("SUPPLIER")
		if err != nil {
			return err
		}
		ex, err := negotiation.NewExchange(*exCfg)
		if err != nil {
			return err
		}
		mux := http.NewServeMux()
		negotiation.NewHandler(ex, toolx.DefaultRates(), version).RegisterRoutes(mux, "")

		srv := &http.Server{Addr: supplierAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
		log.Info().Str("addr", supplierAddr).Str("supplier_id", ex.ID()).Msg("mock supplier listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	supplierCmd.Flags().StringVar(&supplierAddr, "addr", ":9090", "listen address")
}

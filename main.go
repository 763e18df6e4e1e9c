package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	configx "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/pkg/config"
	_ "github.com/tanpawarit/Sentinell-Supply-Chain-Resilience/pkg/logger/autoload"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var envFile string

var rootCmd = &cobra.Command{
	Use:   "sentinell",
	Short: "Sentinell supply-chain resilience engine",
	Long: `Sentinell scans supplier regions for disruption risk and runs
procurement workflows with a human approval gate for large orders.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configx.SetEnvFile(envFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "path to .env file (default: ./.env when present)")
	rootCmd.AddCommand(serveCmd, scanCmd, purchaseCmd, approveCmd, approvalsCmd, supplierCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

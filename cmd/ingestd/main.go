// Command ingestd is the pump.fun/pump-amm ingestion pipeline: it
// subscribes to bonding-curve and AMM pool program activity, parses it into
// typed trade/liquidity/fee events, prices them, and batches the results
// into Postgres, with a stale-token recovery loop and a performance
// monitor running alongside.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globalOpts collects the flags every subcommand can see, mirroring the
// SDK CLI's persistent-flag pattern.
type globalOpts struct {
	databaseURL      string
	network          string
	rpcURL           string
	commitment       string
	streamEndpoint   string
	streamToken      string
	aggregatorURL    string
	aggregatorAPIKey string
	solUSDURL        string
	logLevel         string
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}

	root := &cobra.Command{
		Use:   "ingestd",
		Short: "Pump bonding-curve and AMM ingestion pipeline",
	}

	root.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "Postgres connection string")
	root.PersistentFlags().StringVar(&opts.network, "network", "mainnet", "Solana cluster (mainnet|testnet|devnet|custom)")
	root.PersistentFlags().StringVar(&opts.rpcURL, "rpc-url", "", "RPC endpoint override (default per --network)")
	root.PersistentFlags().StringVar(&opts.commitment, "commitment", "confirmed", "RPC commitment level")
	root.PersistentFlags().StringVar(&opts.streamEndpoint, "stream-endpoint", "", "Yellowstone/Geyser gRPC endpoint")
	root.PersistentFlags().StringVar(&opts.streamToken, "stream-token", "", "x-token for the gRPC stream")
	root.PersistentFlags().StringVar(&opts.aggregatorURL, "aggregator-url", "https://api.dexscreener.com", "tier-2 price aggregator base URL")
	root.PersistentFlags().StringVar(&opts.aggregatorAPIKey, "aggregator-api-key", "", "tier-2 price aggregator API key")
	root.PersistentFlags().StringVar(&opts.solUSDURL, "sol-usd-url", "https://api.coingecko.com/api/v3/simple/price?ids=solana&vs_currencies=usd", "SOL/USD spot price endpoint")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug|info|warn|error)")

	root.AddCommand(newRunCmd(opts))

	return root
}

func parseLogLevel(lvl string) zerolog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

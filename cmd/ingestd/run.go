package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pumpstream/ingest/pkg/config"
	"github.com/pumpstream/ingest/pkg/constants"
	"github.com/pumpstream/ingest/pkg/event"
	"github.com/pumpstream/ingest/pkg/eventbus"
	"github.com/pumpstream/ingest/pkg/monitor"
	"github.com/pumpstream/ingest/pkg/parser"
	"github.com/pumpstream/ingest/pkg/persistence"
	"github.com/pumpstream/ingest/pkg/poolcache"
	"github.com/pumpstream/ingest/pkg/priceadapters"
	"github.com/pumpstream/ingest/pkg/recovery"
	"github.com/pumpstream/ingest/pkg/recoverystore"
	"github.com/pumpstream/ingest/pkg/solanarpc"
	"github.com/pumpstream/ingest/pkg/solusd"
	"github.com/pumpstream/ingest/pkg/stream"
	"github.com/pumpstream/ingest/pkg/tradehandler"
)

var (
	bcProgramID  = constants.PumpProgramID.String()
	ammProgramID = constants.PumpAmmProgramID.String()
)

func newRunCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the ingestion pipeline until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, opts)
		},
	}
}

func buildPipelineConfig(opts *globalOpts, log zerolog.Logger) config.PipelineConfig {
	cfg := config.DefaultPipelineConfig()
	cfg.Logger = log

	cfg.RPC.Network = config.Network(opts.network)
	if opts.rpcURL != "" {
		cfg.RPC.RPCURL = opts.rpcURL
	}
	cfg.RPC.Commitment = opts.commitment
	cfg.RPC.Logger = log

	cfg.Stream.Endpoint = opts.streamEndpoint
	cfg.Stream.Token = opts.streamToken
	cfg.Stream.Commitment = opts.commitment

	cfg.Aggregator.BaseURL = opts.aggregatorURL
	cfg.Aggregator.APIKey = opts.aggregatorAPIKey

	cfg.Persistence.DatabaseURL = opts.databaseURL
	return cfg
}

// runPipeline wires every component (C1-C9) together and runs them until
// the process receives an interrupt or termination signal, per spec.md §5's
// cooperative-cancellation shutdown model.
func runPipeline(cmd *cobra.Command, opts *globalOpts) error {
	log := zerolog.New(cmd.ErrOrStderr()).With().Timestamp().Logger().Level(parseLogLevel(opts.logLevel))
	cfg := buildPipelineConfig(opts, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Persistence.DatabaseURL)
	if err != nil {
		return fmt.Errorf("ingestd: connect to postgres: %w", err)
	}
	defer pool.Close()

	bus := eventbus.New()
	rpcClient := solanarpc.NewClient(cfg.RPC)
	poolCache := poolcache.New(bus)
	solFeed := solusd.New(opts.solUSDURL, pool, log)
	store := persistence.New(pool, cfg.Batch, bus, log)
	registry := parser.NewDefaultRegistry(bus, log)
	handler := tradehandler.New(poolCache, store, bus, solFeed, cfg.Price, log)
	mon := monitor.New(cfg.Monitor, bus, log)

	tokenSource := recoverystore.NewTokenSource(pool)
	poolStateReader := priceadapters.NewPoolStateReader(pool)
	chain := priceadapters.NewChain(log,
		priceadapters.NewPoolStateAdapter(poolStateReader, solFeed, cfg.Price, log),
		priceadapters.NewAggregatorAdapter(cfg.Aggregator, log),
		priceadapters.NewRPCAdapter(rpcClient, solFeed, cfg.Price, log),
	)
	detector := recovery.New(tokenSource, chain, store, cfg.Recovery, bus, log).WithBatchLogWriter(tokenSource)

	codec := stream.ProtoCodec{}
	idx := newMintIndex()
	bcSubscriber := stream.NewGRPCSubscriber(cfg.Stream.Endpoint, cfg.Stream.Token, codec)
	bcManager := stream.NewManager(bcSubscriber, cfg.Stream, log)
	ammSubscriber := stream.NewGRPCSubscriber(cfg.Stream.Endpoint, cfg.Stream.Token, codec)
	ammManager := stream.NewManager(ammSubscriber, cfg.Stream, log)

	onUpdate := func(u stream.Update) {
		switch u.Kind {
		case stream.UpdateKindTransaction:
			handleTransaction(registry, handler, idx, mon, u.Transaction)
		case stream.UpdateKindAccount:
			handleAccountUpdate(poolCache, store, idx, u.Account)
		}
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { store.Run(gctx); return nil })
	group.Go(func() error { detector.Run(gctx); return nil })
	group.Go(func() error { mon.Run(gctx); return nil })
	group.Go(func() error { solFeed.Run(gctx, time.Minute); return nil })
	group.Go(func() error { bcManager.Run(gctx, bcProgramID, onUpdate); return nil })
	group.Go(func() error { ammManager.Run(gctx, ammProgramID, onUpdate); return nil })
	group.Go(func() error { reportQueueDepth(gctx, store, mon); return nil })

	log.Info().Msg("ingestd: pipeline started")
	err = group.Wait()
	log.Info().Msg("ingestd: pipeline stopped")
	return err
}

func reportQueueDepth(ctx context.Context, store *persistence.Store, mon *monitor.Monitor) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mon.RecordQueueDepth(store.PendingCount())
		}
	}
}

func handleTransaction(registry *parser.Registry, handler *tradehandler.Handler, idx *mintIndex, mon *monitor.Monitor, tx *stream.TransactionUpdate) {
	if tx == nil {
		return
	}
	start := time.Now()
	ev, ok := registry.Parse(event.ParseContext{
		Signature:       tx.Signature,
		Slot:            tx.Slot,
		BlockTime:       tx.BlockTime,
		Accounts:        tx.Accounts,
		Logs:            tx.Logs,
		InstructionData: tx.InstructionData,
		ProgramID:       tx.ProgramID,
	})
	mon.RecordParseLatency(time.Since(start))
	if !ok {
		return
	}
	routeEvent(handler, idx, ev)
}

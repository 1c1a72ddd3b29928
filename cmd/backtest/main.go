// Command backtest runs one walk-forward backtest and persists the result.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/akarpos/quantfolio/internal/backtest"
	"github.com/akarpos/quantfolio/internal/cache"
	"github.com/akarpos/quantfolio/internal/clients/yahoo"
	"github.com/akarpos/quantfolio/internal/config"
	"github.com/akarpos/quantfolio/internal/database"
	"github.com/akarpos/quantfolio/internal/domain"
	"github.com/akarpos/quantfolio/internal/factors"
	"github.com/akarpos/quantfolio/internal/marketdata"
	"github.com/akarpos/quantfolio/internal/optimization"
	"github.com/akarpos/quantfolio/internal/universe"
	"github.com/akarpos/quantfolio/pkg/logger"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "backtest:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		startFlag    = flag.String("start", "", "run start date (YYYY-MM-DD)")
		endFlag      = flag.String("end", "", "run end date (YYYY-MM-DD)")
		cadenceFlag  = flag.String("cadence", "monthly", "rebalance cadence: monthly or quarterly")
		universeFlag = flag.String("universe", "", "comma-separated tickers; defaults to the universe database")
		topNFlag     = flag.Int("top-n", 0, "number of top-ranked tickers to hold (0 = config default)")
		capitalFlag  = flag.Float64("capital", 100000, "initial capital")
		macroFlag    = flag.Bool("macro-tilts", false, "apply macro factor tilts (not implemented)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})

	if *macroFlag {
		log.Warn().Msg("Macro tilts are not implemented, flag ignored")
	}

	start, err := time.Parse("2006-01-02", *startFlag)
	if err != nil {
		return fmt.Errorf("invalid -start date: %w", err)
	}
	end, err := time.Parse("2006-01-02", *endFlag)
	if err != nil {
		return fmt.Errorf("invalid -end date: %w", err)
	}
	if *topNFlag > 0 {
		cfg.TopN = *topNFlag
	}

	cacheDB, err := database.New(cfg.CacheDBPath)
	if err != nil {
		return fmt.Errorf("opening cache database: %w", err)
	}
	defer cacheDB.Close()

	store, err := cache.New(cacheDB.Conn())
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}

	retry := marketdata.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.RetryAttempts
	retry.InitialDelay = cfg.RetryInitial
	retry.BackoffFactor = cfg.RetryBackoff

	gateway := marketdata.NewGateway(
		yahoo.NewClient(log),
		store,
		marketdata.NewRateLimiter(cfg.CallsPerMinute),
		retry,
		log,
	)

	provider, universeDB, err := universeProvider(cfg, *universeFlag, log)
	if err != nil {
		return err
	}
	if universeDB != nil {
		defer universeDB.Close()
	}

	scorer := factors.NewEngine(gateway, cfg.FetchWorkers, log)
	adapter := optimization.NewAdapter(optimization.Params{
		TopN:            cfg.TopN,
		MaxWeight:       cfg.MaxWeight,
		MaxSectorWeight: cfg.MaxSectorWeight,
		RiskFreeRate:    cfg.RiskFreeRate,
		AlphaScalar:     cfg.AlphaScalar,
	}, log)

	engine := backtest.NewEngine(provider, scorer, adapter, gateway, log)

	ctx := context.Background()
	result, err := engine.Run(ctx, backtest.RunConfig{
		Start:          start,
		End:            end,
		Cadence:        domain.Cadence(*cadenceFlag),
		InitialCapital: *capitalFlag,
		Benchmark:      cfg.BenchmarkTicker,
		SkipPolicy:     backtest.SkipPolicy(cfg.SkipPolicy),
		RiskFreeRate:   cfg.RiskFreeRate,
	})
	if err != nil {
		return err
	}

	var uploader backtest.Uploader
	if cfg.S3Bucket != "" {
		s3up, err := backtest.NewS3Uploader(ctx, cfg.S3Bucket, log)
		if err != nil {
			log.Warn().Err(err).Msg("S3 uploader unavailable, keeping results local only")
		} else {
			uploader = s3up
		}
	}

	results, err := backtest.NewResultStore(cfg.ResultsDir, uploader, log)
	if err != nil {
		return fmt.Errorf("initializing result store: %w", err)
	}
	if err := results.Save(ctx, result); err != nil {
		return fmt.Errorf("persisting result: %w", err)
	}

	fmt.Printf("run %s: total return %.2f%%, CAGR %.2f%%, sharpe %.2f, max drawdown %.2f%%\n",
		result.RunID,
		result.Metrics.TotalReturn*100,
		result.Metrics.CAGR*100,
		result.Metrics.Sharpe,
		result.Metrics.MaxDrawdown*100,
	)
	return nil
}

// universeProvider builds the universe source: explicit tickers from the
// flag, or the universe database.
func universeProvider(cfg *config.Config, tickersFlag string, log zerolog.Logger) (backtest.UniverseProvider, *database.DB, error) {
	if tickersFlag != "" {
		tickers := strings.Split(tickersFlag, ",")
		for i := range tickers {
			tickers[i] = strings.ToUpper(strings.TrimSpace(tickers[i]))
		}
		return universe.FromTickers(tickers), nil, nil
	}

	db, err := database.New(cfg.UniverseDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening universe database: %w", err)
	}
	repo, err := universe.NewRepository(db.Conn(), log)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("initializing universe repository: %w", err)
	}
	return repo, db, nil
}

// Command ljobx scrapes job postings from the guest listing API and writes
// them to JSON or CSV files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/ljobx/ljobx/pkg/cache"
	"github.com/ljobx/ljobx/pkg/config"
	"github.com/ljobx/ljobx/pkg/fetch"
	"github.com/ljobx/ljobx/pkg/logging"
	"github.com/ljobx/ljobx/pkg/output"
	"github.com/ljobx/ljobx/pkg/provider"
	"github.com/ljobx/ljobx/pkg/proxy"
	"github.com/ljobx/ljobx/pkg/scrape"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:      "ljobx",
		Usage:     "Scrape job postings from the guest listing API",
		UsageText: `ljobx [options] "keywords" "location"`,
		Version:   version,
		Flags:     appFlags(),
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func appFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the YAML configuration file",
		},
		&cli.IntFlag{
			Name:  "max-jobs",
			Value: 25,
			Usage: "Maximum number of jobs to scrape",
		},
		&cli.IntFlag{
			Name:  "concurrency",
			Usage: "Number of concurrent requests (overrides config)",
		},
		&cli.StringFlag{
			Name:  "output-dir",
			Usage: "Directory for result files (overrides config)",
		},
		&cli.StringFlag{
			Name:  "format",
			Usage: "Output format: json or csv (overrides config)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn or error (overrides config)",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Human-readable console logs instead of JSON",
		},
	}

	// One flag per search filter, accepting the human-readable option labels.
	for _, name := range scrape.FilterNames() {
		filter := scrape.Filters[name]
		labels := make([]string, 0, len(filter.Options))
		for label := range filter.Options {
			labels = append(labels, label)
		}
		usage := fmt.Sprintf("Filter by %s. Choices: %s",
			strings.ReplaceAll(name, "_", " "), strings.Join(labels, ", "))
		flagName := strings.ReplaceAll(name, "_", "-")

		if filter.AllowMultiple {
			flags = append(flags, &cli.StringSliceFlag{Name: flagName, Usage: usage})
		} else {
			flags = append(flags, &cli.StringFlag{Name: flagName, Usage: usage})
		}
	}
	return flags
}

func run(cCtx *cli.Context) error {
	if cCtx.NArg() < 2 {
		return fmt.Errorf("keywords and location arguments are required")
	}
	keywords := cCtx.Args().Get(0)
	location := cCtx.Args().Get(1)

	cfg, err := config.Load(cCtx.String("config"))
	if err != nil {
		return err
	}
	applyOverrides(&cfg, cCtx)

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	routes, err := loadRoutes(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var pageCache *cache.Manager
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		pageCache = cache.NewManager(redisClient)
	}

	engine, err := fetch.New(fetch.Config{
		Routes:           routes,
		ConcurrencyLimit: cfg.Concurrency,
		DelayMin:         cfg.Delay.Min,
		DelayMax:         cfg.Delay.Max,
		RequestTimeout:   cfg.RequestTimeout,
		BackoffCap:       cfg.BackoffCap,
		Cache:            pageCache,
	})
	if err != nil {
		return err
	}
	defer engine.Close()

	scraper, err := scrape.New(scrape.Config{
		Engine:         engine,
		ListTimeout:    cfg.RequestTimeout,
		DetailTimeout:  cfg.RequestTimeout / 2,
		DetailAttempts: cfg.DetailAttempts,
		DetailCacheTTL: cfg.CacheTTL,
	})
	if err != nil {
		return err
	}

	criteria := scrape.Criteria{
		Keywords: keywords,
		Location: location,
		Filters:  criteriaFilters(cCtx),
	}

	jobs, stats, err := scraper.Run(ctx, criteria, cCtx.Int("max-jobs"))
	if err != nil {
		return err
	}
	logger.Info().
		Uint64("successes", stats.Successes).
		Uint64("failures", stats.Failures).
		Int("jobs", len(jobs)).
		Msg("Scrape run finished")

	if len(jobs) == 0 {
		logger.Warn().Msg("No jobs found, nothing to save")
		return nil
	}

	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}
	path, err := output.Save(cfg.Output.Dir, keywords, format, jobs)
	if err != nil {
		return err
	}
	logger.Info().Int("jobs", len(jobs)).Str("path", path).Msg("Saved results")
	return nil
}

// applyOverrides layers CLI flags over the loaded configuration.
func applyOverrides(cfg *config.Config, cCtx *cli.Context) {
	if cCtx.IsSet("concurrency") {
		cfg.Concurrency = cCtx.Int("concurrency")
	}
	if cCtx.IsSet("output-dir") {
		cfg.Output.Dir = cCtx.String("output-dir")
	}
	if cCtx.IsSet("format") {
		cfg.Output.Format = cCtx.String("format")
	}
	if cCtx.IsSet("log-level") {
		cfg.Log.Level = cCtx.String("log-level")
	}
	if cCtx.IsSet("pretty") {
		cfg.Log.Pretty = cCtx.Bool("pretty")
	}
}

// criteriaFilters collects the filter flag values by filter name.
func criteriaFilters(cCtx *cli.Context) map[string][]string {
	filters := make(map[string][]string)
	for _, name := range scrape.FilterNames() {
		flagName := strings.ReplaceAll(name, "_", "-")
		if !cCtx.IsSet(flagName) {
			continue
		}
		if scrape.Filters[name].AllowMultiple {
			filters[name] = cCtx.StringSlice(flagName)
		} else {
			filters[name] = []string{cCtx.String(flagName)}
		}
	}
	return filters
}

// loadRoutes aggregates proxy candidates from the configured providers and
// parses them into routes. No providers means a direct connection.
func loadRoutes(ctx context.Context, cfg config.Config, logger zerolog.Logger) ([]proxy.Route, error) {
	providers, err := cfg.Providers()
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, nil
	}

	agg := provider.NewAggregator(providers, provider.AggregatorConfig{
		Validate:     cfg.ValidateProxies,
		ProbeTimeout: 5 * time.Second,
	})
	defer agg.Close()

	routes, err := agg.Routes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load proxies: %w", err)
	}
	if len(routes) == 0 {
		logger.Warn().Msg("No working proxies found, scraping without proxies")
	} else {
		logger.Info().Int("routes", len(routes)).Msg("Proxy pool loaded")
	}
	return routes, nil
}

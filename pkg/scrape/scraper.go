package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ljobx/ljobx/pkg/fetch"
)

// JobsPerPage is how many results the listing API returns per page.
const JobsPerPage = 10

// Prometheus metrics for scrape runs.
var (
	jobsScraped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ljobx_jobs_scraped_total",
		Help: "Total job postings successfully scraped",
	})

	detailFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ljobx_job_detail_failures_total",
		Help: "Total detail fetches that failed after retries",
	})
)

// Config holds scraper configuration.
type Config struct {
	// Engine performs all HTTP fetches. Required.
	Engine *fetch.Engine

	// ListURL and DetailURL override the guest API endpoints, for testing.
	ListURL   string
	DetailURL string

	// ListTimeout is the per-attempt timeout for listing pages (default 10s).
	ListTimeout time.Duration

	// DetailTimeout is the per-attempt timeout for detail pages (default 5s).
	DetailTimeout time.Duration

	// DetailAttempts caps attempts per detail fetch (default 3). Listing
	// pages get a single attempt: a missing page just truncates the run.
	DetailAttempts int

	// DetailCacheTTL caches detail pages for this long when the engine has a
	// cache configured. Zero disables caching.
	DetailCacheTTL time.Duration
}

// Scraper runs job searches end to end: listing pagination, card extraction
// and concurrent detail scraping.
type Scraper struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates a scraper.
func New(cfg Config) (*Scraper, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.ListURL == "" {
		cfg.ListURL = DefaultListURL
	}
	if cfg.DetailURL == "" {
		cfg.DetailURL = DefaultDetailURL
	}
	if cfg.ListTimeout <= 0 {
		cfg.ListTimeout = 10 * time.Second
	}
	if cfg.DetailTimeout <= 0 {
		cfg.DetailTimeout = 5 * time.Second
	}
	if cfg.DetailAttempts <= 0 {
		cfg.DetailAttempts = 3
	}

	return &Scraper{
		cfg:    cfg,
		logger: log.With().Str("component", "scraper").Logger(),
	}, nil
}

// Run executes a search and returns up to maxJobs postings with details,
// plus the engine's fetch statistics for the run. Jobs whose detail page
// could not be fetched keep their summary and carry the error in Err.
func (s *Scraper) Run(ctx context.Context, criteria Criteria, maxJobs int) ([]Job, fetch.Stats, error) {
	if maxJobs <= 0 {
		maxJobs = 25
	}
	pages := (maxJobs + JobsPerPage - 1) / JobsPerPage

	s.logger.Info().
		Str("keywords", criteria.Keywords).
		Str("location", criteria.Location).
		Int("max_jobs", maxJobs).
		Int("pages", pages).
		Msg("Starting scrape run")

	jobs, err := s.collectJobs(ctx, criteria, pages, maxJobs)
	if err != nil {
		return nil, s.cfg.Engine.Stats(), err
	}
	s.logger.Info().Int("jobs", len(jobs)).Msg("Found jobs, fetching details")

	if err := s.fetchDetails(ctx, jobs); err != nil {
		return nil, s.cfg.Engine.Stats(), err
	}

	return jobs, s.cfg.Engine.Stats(), nil
}

// collectJobs fetches the listing pages concurrently, then walks them in
// order extracting job cards until a page comes back empty or maxJobs is
// reached. A failed page fetch truncates the run rather than aborting it.
func (s *Scraper) collectJobs(ctx context.Context, criteria Criteria, pages, maxJobs int) ([]Job, error) {
	bodies := make([][]byte, pages)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < pages; i++ {
		g.Go(func() error {
			pageURL := s.cfg.ListURL + "?" + criteria.Query(i*JobsPerPage).Encode()
			body, err := s.cfg.Engine.Fetch(gctx, pageURL, fetch.Options{
				Timeout:     s.cfg.ListTimeout,
				MaxAttempts: 1,
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Error().Err(err).Int("page", i+1).Msg("Failed to fetch listing page")
				return nil
			}
			bodies[i] = body
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var jobs []Job
	for i, body := range bodies {
		if body == nil {
			s.logger.Info().Int("page", i+1).Msg("Listing page missing, stopping pagination")
			break
		}
		cards, err := parseJobCards(body)
		if err != nil {
			return nil, fmt.Errorf("parse listing page %d: %w", i+1, err)
		}
		if len(cards) == 0 {
			s.logger.Info().Int("page", i+1).Msg("No job cards found, reached end of listings")
			break
		}
		jobs = append(jobs, cards...)
		s.logger.Debug().Int("page", i+1).Int("cards", len(cards)).Int("total", len(jobs)).Msg("Processed listing page")
		if len(jobs) >= maxJobs {
			jobs = jobs[:maxJobs]
			break
		}
	}
	return jobs, nil
}

// fetchDetails scrapes each job's posting page concurrently, writing details
// in place. Individual failures are recorded on the job, not returned.
func (s *Scraper) fetchDetails(ctx context.Context, jobs []Job) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range jobs {
		job := &jobs[i]
		g.Go(func() error {
			detailURL := fmt.Sprintf("%s/%s", s.cfg.DetailURL, job.ID)
			body, err := s.cfg.Engine.Fetch(gctx, detailURL, fetch.Options{
				Timeout:     s.cfg.DetailTimeout,
				MaxAttempts: s.cfg.DetailAttempts,
				CacheTTL:    s.cfg.DetailCacheTTL,
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				detailFailures.Inc()
				job.Err = err.Error()
				s.logger.Warn().
					Str("job_id", job.ID).
					Str("title", job.Title).
					Str("company", job.Company).
					Err(err).
					Msg("Could not fetch job details")
				return nil
			}
			if err := parseJobDetails(job, body); err != nil {
				job.Err = err.Error()
				return nil
			}
			jobsScraped.Inc()
			s.logger.Debug().
				Str("job_id", job.ID).
				Str("title", job.Title).
				Str("company", job.Company).
				Msg("Parsed job details")
			return nil
		})
	}
	return g.Wait()
}

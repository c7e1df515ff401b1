package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ljobx/ljobx/internal/testutil"
	"github.com/ljobx/ljobx/pkg/cache"
	"github.com/ljobx/ljobx/pkg/fetch"
	"github.com/ljobx/ljobx/pkg/scrape"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// TestFullScrapeFlow runs a complete scrape against the mock board with a
// Redis page cache: listing pagination, detail fetches, cache population.
func TestFullScrapeFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	board := testutil.NewMockBoard()
	defer board.Close()

	board.SetListingPages(map[int]string{
		0: testutil.ListingPage([]testutil.JobCard{
			{ID: "1", Title: "Go Developer", Company: "Acme"},
			{ID: "2", Title: "SRE", Company: "Globex"},
		}),
	})
	board.SetJobDetail("1", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body: testutil.DetailPage(testutil.DetailSpec{
			Location:    "Berlin, Germany",
			Description: "Build services in Go.",
		}),
	})
	board.SetJobDetail("2", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body: testutil.DetailPage(testutil.DetailSpec{
			Location:    "Remote",
			Description: "Keep things running.",
		}),
	})

	engine, err := fetch.New(fetch.Config{
		ConcurrencyLimit: 3,
		Cache:            cache.NewManager(redisClient),
	})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	defer engine.Close()

	scraper, err := scrape.New(scrape.Config{
		Engine:         engine,
		ListURL:        board.ListURL(),
		DetailURL:      board.DetailURL(),
		DetailCacheTTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("Failed to create scraper: %v", err)
	}

	ctx := context.Background()
	jobs, stats, err := scraper.Run(ctx, scrape.Criteria{Keywords: "go"}, 10)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].Location != "Berlin, Germany" || jobs[1].Location != "Remote" {
		t.Errorf("Unexpected job details: %+v", jobs)
	}
	if stats.Failures != 0 {
		t.Errorf("Stats.Failures = %d, want 0", stats.Failures)
	}

	// Detail pages should now be cached.
	detailURL := board.DetailURL() + "/1"
	if _, err := cache.NewManager(redisClient).GetPage(ctx, detailURL); err != nil {
		t.Errorf("Detail page should be cached, got %v", err)
	}

	// A second run fetches the details from cache: only the listing pages
	// (one with cards, none beyond) hit the board again.
	before := board.GetRequestCount()
	jobs2, _, err := scraper.Run(ctx, scrape.Criteria{Keywords: "go"}, 10)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if len(jobs2) != 2 {
		t.Fatalf("Second run: expected 2 jobs, got %d", len(jobs2))
	}
	detailRequests := board.GetRequestCount() - before - 1 // minus the listing page
	if detailRequests != 0 {
		t.Errorf("Second run made %d detail requests, want 0 (cache hits)", detailRequests)
	}
}

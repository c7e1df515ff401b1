package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultWebshareBaseURL = "https://proxy.webshare.io"

// WebshareConfig configures the Webshare rotating-proxy API source.
type WebshareConfig struct {
	APIKey   string `yaml:"api_key"`
	PageSize int    `yaml:"page_size"`
	MaxPages int    `yaml:"max_pages"`

	// BaseURL overrides the API endpoint, for tests.
	BaseURL string `yaml:"-"`
}

// WebshareProvider fetches proxies from the webshare.io API and formats
// them as socks5 URIs.
type WebshareProvider struct {
	cfg    WebshareConfig
	client *http.Client
	logger zerolog.Logger
}

// webshareEntry is one proxy record in the API response.
type webshareEntry struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	ProxyAddress string `json:"proxy_address"`
	Port         int    `json:"port"`
}

type websharePage struct {
	Results []webshareEntry `json:"results"`
}

// NewWebshareProvider creates a Webshare API provider.
func NewWebshareProvider(cfg WebshareConfig) (*WebshareProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("webshare api key is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultWebshareBaseURL
	}

	return &WebshareProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: log.With().Str("component", "webshare-provider").Logger(),
	}, nil
}

// Name implements Provider.
func (p *WebshareProvider) Name() string {
	return "webshare"
}

// FetchCandidates pages through the proxy list API, stopping at an empty
// page or on the first request error. Proxies fetched before an error are
// still returned.
func (p *WebshareProvider) FetchCandidates(ctx context.Context) ([]string, error) {
	var all []string

	for page := 1; page <= p.cfg.MaxPages; page++ {
		entries, err := p.fetchPage(ctx, page)
		if err != nil {
			p.logger.Error().Err(err).Int("page", page).Msg("Webshare page fetch failed, stopping")
			if len(all) > 0 {
				return all, nil
			}
			return nil, err
		}
		if len(entries) == 0 {
			p.logger.Debug().Int("page", page).Msg("No more proxies, stopping")
			break
		}

		for _, e := range entries {
			all = append(all, fmt.Sprintf("socks5://%s:%s@%s:%d", e.Username, e.Password, e.ProxyAddress, e.Port))
		}
		p.logger.Debug().Int("page", page).Int("count", len(entries)).Msg("Fetched Webshare page")
	}

	p.logger.Info().Int("total", len(all)).Msg("Fetched proxies from Webshare")
	return all, nil
}

func (p *WebshareProvider) fetchPage(ctx context.Context, page int) ([]webshareEntry, error) {
	url := fmt.Sprintf("%s/api/v2/proxy/list/?mode=direct&page=%d&page_size=%d", p.cfg.BaseURL, page, p.cfg.PageSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webshare request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webshare returned status %s", resp.Status)
	}

	var body websharePage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode webshare response: %w", err)
	}
	return body.Results, nil
}

// Close implements Provider.
func (p *WebshareProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

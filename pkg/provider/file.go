package provider

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// protocolRe matches URIs that already carry a scheme like "socks5://".
var protocolRe = regexp.MustCompile(`^[a-zA-Z0-9]+://`)

// FileConfig describes one proxy list file. Scheme, when set, is prepended
// to bare host:port entries and filters out entries with a different scheme.
type FileConfig struct {
	Path   string `yaml:"path"`
	Scheme string `yaml:"scheme"`
}

// FileProvider loads proxy URIs from local list files, one per line. Blank
// lines and #-comments are skipped, as are insecure http:// proxies.
type FileProvider struct {
	configs []FileConfig
	logger  zerolog.Logger
}

// NewFileProvider creates a provider over the given file configurations.
func NewFileProvider(configs []FileConfig) *FileProvider {
	return &FileProvider{
		configs: configs,
		logger:  log.With().Str("component", "file-provider").Logger(),
	}
}

// Name implements Provider.
func (p *FileProvider) Name() string {
	return "file"
}

// FetchCandidates reads every configured file. A missing file is logged and
// skipped rather than failing the whole aggregation.
func (p *FileProvider) FetchCandidates(ctx context.Context) ([]string, error) {
	var candidates []string
	for _, cfg := range p.configs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cfg.Path == "" {
			p.logger.Warn().Msg("Skipping file config with empty path")
			continue
		}

		loaded, err := p.loadFile(cfg)
		if err != nil {
			if os.IsNotExist(err) {
				p.logger.Warn().Str("path", cfg.Path).Msg("Proxy file not found, skipping")
				continue
			}
			return nil, fmt.Errorf("read proxy file %s: %w", cfg.Path, err)
		}
		candidates = append(candidates, loaded...)
	}
	return candidates, nil
}

func (p *FileProvider) loadFile(cfg FileConfig) ([]string, error) {
	file, err := os.Open(cfg.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var proxies []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), "http://") {
			p.logger.Debug().Str("path", cfg.Path).Str("proxy", line).Msg("Skipping insecure http:// proxy")
			continue
		}

		if protocolRe.MatchString(line) {
			if cfg.Scheme != "" && !strings.HasPrefix(line, cfg.Scheme+"://") {
				p.logger.Debug().Str("path", cfg.Path).Str("proxy", line).Msg("Skipping proxy with non-matching scheme")
				continue
			}
			proxies = append(proxies, line)
			continue
		}

		if cfg.Scheme == "" {
			p.logger.Warn().Str("path", cfg.Path).Str("proxy", line).Msg("Skipping proxy without scheme and no default configured")
			continue
		}
		proxies = append(proxies, cfg.Scheme+"://"+line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	p.logger.Debug().Str("path", cfg.Path).Int("count", len(proxies)).Msg("Loaded proxies from file")
	return proxies, nil
}

// Close implements Provider. The file provider holds no resources.
func (p *FileProvider) Close() error {
	return nil
}

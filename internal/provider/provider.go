package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/pricescout/product-finder/internal/browser"
	"github.com/pricescout/product-finder/internal/extract"
	"github.com/pricescout/product-finder/internal/models"
	"github.com/pricescout/product-finder/internal/ratelimit"
)

var ErrEmptyQuery = errors.New("search criteria produce an empty query")

// Provider searches one marketplace for products matching the criteria.
// A returned error means this platform contributed nothing; it never aborts
// sibling providers.
type Provider interface {
	Platform() models.Platform
	Search(ctx context.Context, criteria models.SearchCriteria, maxResults int) ([]models.Product, error)
}

// Fetcher returns fully rendered HTML for a URL. Implemented by PageFetcher
// over a real browser and by fakes in tests.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// ProductExtractor turns rendered HTML into candidate products. Implemented
// by extract.Extractor.
type ProductExtractor interface {
	ExtractProducts(ctx context.Context, html string, criteria models.SearchCriteria, platform models.Platform) ([]models.Product, error)
}

// PageFetcher adapts a shared Browser into a per-invocation Fetcher. Every
// Fetch opens its own page and releases it on all exit paths.
type PageFetcher struct {
	browser *browser.Browser
	hints   browser.FetchHints
}

func NewPageFetcher(b *browser.Browser, hints browser.FetchHints) *PageFetcher {
	return &PageFetcher{browser: b, hints: hints}
}

func (f *PageFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	page, err := f.browser.NewPage()
	if err != nil {
		return "", fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	return f.browser.FetchRenderedHTML(page, pageURL, f.hints)
}

// SearchProvider is the shared marketplace search implementation: build the
// keyword URL, fetch the rendered page, extract candidates, validate them
// against the criteria and truncate to maxResults.
type SearchProvider struct {
	platform  models.Platform
	searchURL func(query string) string
	fetcher   Fetcher
	extractor ProductExtractor
	limiter   ratelimit.RateLimiter
	logger    *slog.Logger
}

func newSearchProvider(platform models.Platform, searchURL func(string) string, fetcher Fetcher, extractor ProductExtractor, limiter ratelimit.RateLimiter, logger *slog.Logger) *SearchProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchProvider{
		platform:  platform,
		searchURL: searchURL,
		fetcher:   fetcher,
		extractor: extractor,
		limiter:   limiter,
		logger:    logger.With("component", "provider", "platform", platform),
	}
}

// NewJD searches jd.com.
func NewJD(fetcher Fetcher, extractor ProductExtractor, limiter ratelimit.RateLimiter, logger *slog.Logger) *SearchProvider {
	return newSearchProvider(models.PlatformJD, func(query string) string {
		return "https://search.jd.com/Search?keyword=" + url.QueryEscape(query) + "&enc=utf-8"
	}, fetcher, extractor, limiter, logger)
}

// NewTaobao searches taobao.com.
func NewTaobao(fetcher Fetcher, extractor ProductExtractor, limiter ratelimit.RateLimiter, logger *slog.Logger) *SearchProvider {
	return newSearchProvider(models.PlatformTaobao, func(query string) string {
		return "https://s.taobao.com/search?q=" + url.QueryEscape(query)
	}, fetcher, extractor, limiter, logger)
}

// NewPDD searches Pinduoduo through its mobile site.
func NewPDD(fetcher Fetcher, extractor ProductExtractor, limiter ratelimit.RateLimiter, logger *slog.Logger) *SearchProvider {
	return newSearchProvider(models.PlatformPDD, func(query string) string {
		return "https://mobile.yangkeduo.com/search_result.html?search_key=" + url.QueryEscape(query)
	}, fetcher, extractor, limiter, logger)
}

func (p *SearchProvider) Platform() models.Platform {
	return p.platform
}

// SearchURL exposes the keyword URL this provider navigates to.
func (p *SearchProvider) SearchURL(criteria models.SearchCriteria) (string, error) {
	query := criteria.Query()
	if query == "" {
		return "", ErrEmptyQuery
	}
	return p.searchURL(query), nil
}

func (p *SearchProvider) Search(ctx context.Context, criteria models.SearchCriteria, maxResults int) ([]models.Product, error) {
	searchURL, err := p.SearchURL(criteria)
	if err != nil {
		return nil, err
	}

	p.logger.Info("starting search", "query", criteria.Query(), "url", searchURL)

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter interrupted: %w", err)
		}
	}

	html, err := p.fetcher.Fetch(ctx, searchURL)
	if err != nil {
		p.recordError()
		return nil, fmt.Errorf("failed to fetch search page: %w", err)
	}

	candidates, err := p.extractor.ExtractProducts(ctx, html, criteria, p.platform)
	if err != nil {
		p.recordError()
		return nil, fmt.Errorf("failed to extract products: %w", err)
	}

	// Truncate before validating, matching the per-platform result budget.
	if maxResults > 0 && len(candidates) > maxResults {
		candidates = candidates[:maxResults]
	}

	validated := make([]models.Product, 0, len(candidates))
	for _, product := range candidates {
		if extract.MatchesCriteria(product, criteria) {
			validated = append(validated, product)
		} else {
			p.logger.Debug("candidate rejected", "title", product.Title, "price", product.Price)
		}
	}

	p.recordSuccess()
	p.logger.Info("search completed", "candidates", len(candidates), "validated", len(validated))
	return validated, nil
}

func (p *SearchProvider) recordSuccess() {
	if adaptive, ok := p.limiter.(*ratelimit.AdaptiveRateLimiter); ok {
		adaptive.RecordSuccess()
	}
}

func (p *SearchProvider) recordError() {
	if adaptive, ok := p.limiter.(*ratelimit.AdaptiveRateLimiter); ok {
		adaptive.RecordError()
	}
}

// Registry maps platform tags to providers. Lookups for unknown tags miss
// silently; the coordinator skips them.
type Registry struct {
	providers map[models.Platform]Provider
	order     []models.Platform
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[models.Platform]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Provider) {
	if _, exists := r.providers[p.Platform()]; !exists {
		r.order = append(r.order, p.Platform())
	}
	r.providers[p.Platform()] = p
}

func (r *Registry) Get(platform models.Platform) (Provider, bool) {
	p, ok := r.providers[platform]
	return p, ok
}

// Platforms returns the registered platform tags in registration order.
func (r *Registry) Platforms() []models.Platform {
	out := make([]models.Platform, len(r.order))
	copy(out, r.order)
	return out
}

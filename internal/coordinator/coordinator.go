package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pricescout/product-finder/internal/aggregator"
	"github.com/pricescout/product-finder/internal/models"
	"github.com/pricescout/product-finder/internal/provider"
)

// Request describes one coordinated search.
type Request struct {
	Criteria              models.SearchCriteria
	Platforms             []models.Platform
	MaxResultsPerPlatform int
	Parallel              bool
}

// Coordinator fans a search out to the registered providers, joins their
// results and hands the combined list to the aggregator.
type Coordinator struct {
	registry   *provider.Registry
	aggregator *aggregator.Aggregator
	logger     *slog.Logger
}

func New(registry *provider.Registry, agg *aggregator.Aggregator, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		registry:   registry,
		aggregator: agg,
		logger:     logger.With("component", "coordinator"),
	}
}

// Search runs the request against every requested platform present in the
// registry. Unknown platform tags are skipped. Provider failures become
// error-status platform results; they never abort sibling searches. The
// combined product list preserves the requested platform order regardless
// of completion order.
func (c *Coordinator) Search(ctx context.Context, req Request) models.SearchOutcome {
	start := time.Now()

	platforms := req.Platforms
	if len(platforms) == 0 && c.registry != nil {
		platforms = c.registry.Platforms()
	}
	maxResults := req.MaxResultsPerPlatform
	if maxResults <= 0 {
		maxResults = 10
	}

	c.logger.Info("starting coordinated search",
		"query", req.Criteria.Query(),
		"max_price", req.Criteria.MaxPrice,
		"platforms", platforms,
		"parallel", req.Parallel)

	// Resolve providers up front; a failure here is a coordinator failure
	// and returns without partial results.
	invocations, err := c.buildInvocations(platforms)
	if err != nil {
		c.logger.Error("coordinator failed", "error", err)
		return models.SearchOutcome{
			Status:           models.StatusError,
			Criteria:         req.Criteria,
			Error:            err.Error(),
			FilteredProducts: []models.Product{},
			BestDeals:        []models.Product{},
			ExecutionTime:    time.Since(start),
		}
	}

	results := make([]models.PlatformResult, len(invocations))
	if req.Parallel {
		c.logger.Info("executing parallel search", "providers", len(invocations))
		var wg sync.WaitGroup
		for i, inv := range invocations {
			wg.Add(1)
			go func(slot int, inv invocation) {
				defer wg.Done()
				results[slot] = c.invoke(ctx, inv, req.Criteria, maxResults)
			}(i, inv)
		}
		wg.Wait()
	} else {
		c.logger.Info("executing sequential search", "providers", len(invocations))
		for i, inv := range invocations {
			results[i] = c.invoke(ctx, inv, req.Criteria, maxResults)
			c.logger.Info("completed platform search", "platform", inv.platform)
		}
	}

	resultsByPlatform := make(map[models.Platform]models.PlatformResult, len(results))
	var allProducts []models.Product
	for _, res := range results {
		resultsByPlatform[res.Platform] = res
		if res.Status == models.StatusSuccess {
			allProducts = append(allProducts, res.Products...)
			c.logger.Info("platform contributed products", "platform", res.Platform, "count", res.Count)
		} else {
			c.logger.Warn("platform search failed", "platform", res.Platform, "error", res.Error)
		}
	}

	aggOpts := aggregator.DefaultOptions()
	aggResult := c.aggregator.Aggregate(allProducts, req.Criteria, aggOpts)

	summary := buildSummary(req.Criteria, results, aggResult)
	c.logger.Info("coordinated search completed",
		"total_found", summary.TotalProductsFound,
		"after_filtering", summary.AfterFiltering,
		"failed_platforms", summary.FailedPlatforms,
		"duration", time.Since(start))

	return models.SearchOutcome{
		Status:            models.StatusSuccess,
		Criteria:          req.Criteria,
		ResultsByPlatform: resultsByPlatform,
		AllProducts:       allProducts,
		FilteredProducts:  aggResult.FilteredProducts,
		BestDeals:         aggResult.BestDeals,
		PriceAnalysis:     aggResult.PriceAnalysis,
		Summary:           summary,
		Error:             aggResult.Error,
		ExecutionTime:     time.Since(start),
	}
}

type invocation struct {
	platform models.Platform
	provider provider.Provider
}

func (c *Coordinator) buildInvocations(platforms []models.Platform) ([]invocation, error) {
	if c.registry == nil {
		return nil, fmt.Errorf("no provider registry configured")
	}

	invocations := make([]invocation, 0, len(platforms))
	for _, platform := range platforms {
		p, ok := c.registry.Get(platform)
		if !ok {
			c.logger.Warn("unknown platform requested, skipping", "platform", platform)
			continue
		}
		invocations = append(invocations, invocation{platform: platform, provider: p})
	}
	return invocations, nil
}

// invoke runs one provider, converting any failure (error return or panic)
// into an error-status result so siblings are unaffected.
func (c *Coordinator) invoke(ctx context.Context, inv invocation, criteria models.SearchCriteria, maxResults int) (result models.PlatformResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("provider panicked", "platform", inv.platform, "panic", r)
			result = models.ErrorResult(inv.platform, fmt.Errorf("provider panicked: %v", r))
		}
	}()

	products, err := inv.provider.Search(ctx, criteria, maxResults)
	if err != nil {
		return models.ErrorResult(inv.platform, err)
	}
	return models.SuccessResult(inv.platform, products)
}

// buildSummary counts products from successful platforms only; failed ones
// contribute zero but are reported by name.
func buildSummary(criteria models.SearchCriteria, results []models.PlatformResult, agg models.AggregateResult) models.Summary {
	summary := models.Summary{
		AfterFiltering:      agg.FilteredCount,
		SuccessfulPlatforms: []models.Platform{},
		FailedPlatforms:     []models.Platform{},
		SearchQuery:         criteria.Query(),
		MaxPrice:            criteria.MaxPrice,
	}

	for _, res := range results {
		if res.Status == models.StatusSuccess {
			summary.TotalProductsFound += res.Count
			summary.SuccessfulPlatforms = append(summary.SuccessfulPlatforms, res.Platform)
		} else {
			summary.FailedPlatforms = append(summary.FailedPlatforms, res.Platform)
		}
	}

	return summary
}

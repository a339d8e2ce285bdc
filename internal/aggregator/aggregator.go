package aggregator

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/pricescout/product-finder/internal/models"
	"github.com/pricescout/product-finder/internal/pricing"
)

// SortKey selects the ordering of the filtered product list.
type SortKey string

const (
	SortByPrice    SortKey = "price"
	SortByPlatform SortKey = "platform"
	SortByTitle    SortKey = "title"
)

// DefaultTopDeals is how many cheapest products the aggregator surfaces as
// best deals when the caller does not override it.
const DefaultTopDeals = 5

// Options tune one Aggregate call.
type Options struct {
	Dedupe   bool
	SortBy   SortKey
	TopDeals int
}

func DefaultOptions() Options {
	return Options{
		Dedupe:   true,
		SortBy:   SortByPrice,
		TopDeals: DefaultTopDeals,
	}
}

// Aggregator merges, dedupes, sorts and price-analyzes combined product
// lists. It holds no per-search state and is safe for concurrent use.
type Aggregator struct {
	validator *pricing.Validator
	logger    *slog.Logger
}

func New(validator *pricing.Validator, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		validator: validator,
		logger:    logger.With("component", "aggregator"),
	}
}

// Aggregate runs the pipeline: price filter, dedupe, sort, price analysis,
// best deals. An internal panic degrades to an empty result with the
// original count preserved; it never propagates to the caller.
func (a *Aggregator) Aggregate(products []models.Product, criteria models.SearchCriteria, opts Options) (result models.AggregateResult) {
	originalCount := len(products)

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("aggregation failed", "panic", r)
			result = models.AggregateResult{
				FilteredProducts: []models.Product{},
				OriginalCount:    originalCount,
				FilteredCount:    0,
				BestDeals:        []models.Product{},
				Error:            fmt.Sprintf("aggregation failed: %v", r),
			}
		}
	}()

	a.logger.Info("starting aggregation", "products", originalCount)

	filtered := products

	// A zero MaxPrice disables the price filter entirely.
	if criteria.MaxPrice > 0 {
		filtered = a.validator.FilterByPrice(filtered, criteria.MaxPrice)
	}

	if opts.Dedupe {
		filtered = a.removeDuplicates(filtered)
	}

	filtered = sortProducts(filtered, opts.SortBy)

	topN := opts.TopDeals
	if topN == 0 {
		topN = DefaultTopDeals
	}

	result = models.AggregateResult{
		FilteredProducts: filtered,
		OriginalCount:    originalCount,
		FilteredCount:    len(filtered),
		PriceAnalysis:    a.validator.Analyze(filtered),
		BestDeals:        a.validator.BestDeals(filtered, topN),
	}

	a.logger.Info("aggregation completed",
		"original", result.OriginalCount,
		"filtered", result.FilteredCount,
		"best_deals", len(result.BestDeals))

	return result
}

// removeDuplicates drops later products sharing a dedupe key with an
// earlier one, keeping the original relative order. Listings with the same
// title and price are duplicates even across platforms and shops.
func (a *Aggregator) removeDuplicates(products []models.Product) []models.Product {
	seen := make(map[string]struct{}, len(products))
	unique := make([]models.Product, 0, len(products))

	for _, p := range products {
		key := p.DedupeKey()
		if _, ok := seen[key]; ok {
			a.logger.Debug("duplicate found", "title", p.Title, "price", p.Price)
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, p)
	}

	if removed := len(products) - len(unique); removed > 0 {
		a.logger.Info("removed duplicate products", "count", removed)
	}
	return unique
}

// sortProducts orders by the requested key. Unknown keys leave the list
// untouched. Missing prices sort last; missing platform or title sorts as
// the empty string, i.e. first.
func sortProducts(products []models.Product, key SortKey) []models.Product {
	sorted := make([]models.Product, len(products))
	copy(sorted, products)

	switch key {
	case SortByPrice:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sortPrice(sorted[i]) < sortPrice(sorted[j])
		})
	case SortByPlatform:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Platform < sorted[j].Platform
		})
	case SortByTitle:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Title < sorted[j].Title
		})
	}

	return sorted
}

func sortPrice(p models.Product) float64 {
	if p.Price == 0 {
		return math.Inf(1)
	}
	return p.Price
}

package models

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies the marketplace a product was found on.
type Platform string

const (
	PlatformJD     Platform = "jd"
	PlatformTaobao Platform = "taobao"
	PlatformPDD    Platform = "pdd"
)

// SearchCriteria defines one product search. Immutable per invocation.
type SearchCriteria struct {
	Brand    string  `json:"brand"`
	Model    string  `json:"model"`
	MaxPrice float64 `json:"max_price"`
}

func NewSearchCriteria(brand, model string, maxPrice float64) (SearchCriteria, error) {
	c := SearchCriteria{
		Brand:    strings.TrimSpace(brand),
		Model:    strings.TrimSpace(model),
		MaxPrice: maxPrice,
	}
	if c.Brand == "" && c.Model == "" {
		return SearchCriteria{}, fmt.Errorf("search criteria require a brand or a model")
	}
	if maxPrice < 0 {
		return SearchCriteria{}, fmt.Errorf("max price cannot be negative: %f", maxPrice)
	}
	return c, nil
}

// Query returns the normalized search keyword, "brand model" trimmed.
func (c SearchCriteria) Query() string {
	return strings.TrimSpace(c.Brand + " " + c.Model)
}

// Product is one candidate listing from a marketplace. Never mutated after
// creation, only copied or filtered.
type Product struct {
	Title    string   `json:"title"`
	Price    float64  `json:"price"`
	Brand    string   `json:"brand"`
	Model    string   `json:"model"`
	URL      string   `json:"url,omitempty"`
	Shop     string   `json:"shop,omitempty"`
	Platform Platform `json:"platform"`
}

// DedupeKey is the approximate identity used when removing duplicates:
// identical title and price collapse to one listing even across platforms.
func (p Product) DedupeKey() string {
	return fmt.Sprintf("%s_%v", strings.ToLower(strings.TrimSpace(p.Title)), p.Price)
}

// ResultStatus marks a per-platform invocation outcome.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
)

// PlatformResult is the outcome of one provider invocation. Provider
// failures are carried here as data, never raised across components.
type PlatformResult struct {
	Status   ResultStatus `json:"status"`
	Platform Platform     `json:"platform"`
	Products []Product    `json:"products"`
	Count    int          `json:"count"`
	Error    string       `json:"error,omitempty"`
}

func SuccessResult(platform Platform, products []Product) PlatformResult {
	return PlatformResult{
		Status:   StatusSuccess,
		Platform: platform,
		Products: products,
		Count:    len(products),
	}
}

func ErrorResult(platform Platform, err error) PlatformResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return PlatformResult{
		Status:   StatusError,
		Platform: platform,
		Products: []Product{},
		Error:    msg,
	}
}

// PlatformStats holds the per-platform slice of a price analysis.
type PlatformStats struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// PriceAnalysis summarizes the price distribution of a product list.
// Only strictly positive prices participate.
type PriceAnalysis struct {
	Count      int                        `json:"count"`
	Min        float64                    `json:"min"`
	Max        float64                    `json:"max"`
	Average    float64                    `json:"average"`
	Median     float64                    `json:"median"`
	ByPlatform map[Platform]PlatformStats `json:"by_platform,omitempty"`
}

// AggregateResult is what the aggregator hands back: the pipeline output
// plus enough context to diagnose a degraded run.
type AggregateResult struct {
	FilteredProducts []Product     `json:"filtered_products"`
	OriginalCount    int           `json:"original_count"`
	FilteredCount    int           `json:"filtered_count"`
	PriceAnalysis    PriceAnalysis `json:"price_analysis"`
	BestDeals        []Product     `json:"best_deals"`
	Error            string        `json:"error,omitempty"`
}

// Summary condenses a coordinated search for callers and the history sink.
type Summary struct {
	TotalProductsFound  int        `json:"total_products_found"`
	AfterFiltering      int        `json:"after_filtering"`
	SuccessfulPlatforms []Platform `json:"successful_platforms"`
	FailedPlatforms     []Platform `json:"failed_platforms"`
	SearchQuery         string     `json:"search_query"`
	MaxPrice            float64    `json:"max_price"`
}

// SearchOutcome is the top-level result of a coordinated search.
type SearchOutcome struct {
	Status            ResultStatus                `json:"status"`
	Criteria          SearchCriteria              `json:"search_criteria"`
	ResultsByPlatform map[Platform]PlatformResult `json:"results_by_platform,omitempty"`
	AllProducts       []Product                   `json:"all_products,omitempty"`
	FilteredProducts  []Product                   `json:"filtered_products"`
	BestDeals         []Product                   `json:"best_deals"`
	PriceAnalysis     PriceAnalysis               `json:"price_analysis"`
	Summary           Summary                     `json:"summary"`
	Error             string                      `json:"error,omitempty"`
	ExecutionTime     time.Duration               `json:"-"`
}

// BestPrice returns the cheapest price in the outcome, or 0 when no deals
// were found.
func (o SearchOutcome) BestPrice() float64 {
	if len(o.BestDeals) == 0 {
		return 0
	}
	return o.BestDeals[0].Price
}

package pricing

import (
	"log/slog"
	"math"
	"sort"

	"github.com/pricescout/product-finder/internal/models"
)

// Validator checks product prices against a budget and computes price
// statistics over a result set.
type Validator struct {
	logger *slog.Logger
}

func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{logger: logger.With("component", "price_validator")}
}

// ValidatePrice reports whether price is within (0, maxPrice].
func (v *Validator) ValidatePrice(price, maxPrice float64) bool {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		v.logger.Warn("invalid price value", "price", price)
		return false
	}
	return price > 0 && price <= maxPrice
}

// FilterByPrice keeps products whose price is within (0, maxPrice].
// Products failing validation are dropped, never errored.
func (v *Validator) FilterByPrice(products []models.Product, maxPrice float64) []models.Product {
	filtered := make([]models.Product, 0, len(products))
	for _, p := range products {
		if v.ValidatePrice(p.Price, maxPrice) {
			filtered = append(filtered, p)
		} else {
			v.logger.Debug("filtered out product",
				"title", p.Title, "price", p.Price, "max_price", maxPrice)
		}
	}
	v.logger.Info("price filter applied", "before", len(products), "after", len(filtered))
	return filtered
}

// Analyze computes the price distribution of a product list. Only strictly
// positive prices participate; an empty set yields a zeroed analysis.
func (v *Validator) Analyze(products []models.Product) models.PriceAnalysis {
	prices := make([]float64, 0, len(products))
	for _, p := range products {
		if p.Price > 0 {
			prices = append(prices, p.Price)
		}
	}

	if len(prices) == 0 {
		return models.PriceAnalysis{}
	}

	sort.Float64s(prices)

	count := len(prices)
	var sum float64
	for _, price := range prices {
		sum += price
	}

	var median float64
	if count%2 == 1 {
		median = prices[count/2]
	} else {
		median = (prices[count/2-1] + prices[count/2]) / 2
	}

	analysis := models.PriceAnalysis{
		Count:      count,
		Min:        prices[0],
		Max:        prices[count-1],
		Average:    sum / float64(count),
		Median:     median,
		ByPlatform: v.analyzeByPlatform(products),
	}

	return analysis
}

func (v *Validator) analyzeByPlatform(products []models.Product) map[models.Platform]models.PlatformStats {
	grouped := make(map[models.Platform][]float64)
	for _, p := range products {
		if p.Price > 0 {
			grouped[p.Platform] = append(grouped[p.Platform], p.Price)
		}
	}

	stats := make(map[models.Platform]models.PlatformStats, len(grouped))
	for platform, prices := range grouped {
		min, max := prices[0], prices[0]
		var sum float64
		for _, price := range prices {
			sum += price
			if price < min {
				min = price
			}
			if price > max {
				max = price
			}
		}
		stats[platform] = models.PlatformStats{
			Count:   len(prices),
			Average: sum / float64(len(prices)),
			Min:     min,
			Max:     max,
		}
	}
	return stats
}

// BestDeals returns the topN cheapest products. Missing prices sort last.
// The input slice is left untouched.
func (v *Validator) BestDeals(products []models.Product, topN int) []models.Product {
	if len(products) == 0 || topN <= 0 {
		return []models.Product{}
	}

	sorted := make([]models.Product, len(products))
	copy(sorted, products)
	sort.SliceStable(sorted, func(i, j int) bool {
		return priceOrInf(sorted[i]) < priceOrInf(sorted[j])
	})

	if topN > len(sorted) {
		topN = len(sorted)
	}

	v.logger.Info("best deals selected", "count", topN)
	return sorted[:topN]
}

func priceOrInf(p models.Product) float64 {
	if p.Price == 0 {
		return math.Inf(1)
	}
	return p.Price
}

package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pricescout/product-finder/internal/models"
)

// maxCleanedLength caps the page text handed to the LLM.
const maxCleanedLength = 50000

// Completer produces a completion for a prompt. Satisfied by llm.Client.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Extractor turns rendered marketplace HTML into structured products using
// an LLM. Downstream validation still applies: the extractor does not
// guarantee brand/model/price matching.
type Extractor struct {
	llm    Completer
	logger *slog.Logger
}

func NewExtractor(llm Completer, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		llm:    llm,
		logger: logger.With("component", "extractor"),
	}
}

// CleanHTML strips script/style/noscript tags and collapses the document to
// its visible text, capped at maxCleanedLength characters.
func CleanHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		if len(html) > maxCleanedLength {
			return html[:maxCleanedLength]
		}
		return html
	}

	doc.Find("script, style, noscript").Remove()

	var lines []string
	doc.Find("body, body *").Each(func(_ int, s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			if goquery.NodeName(c) == "#text" {
				if text := strings.TrimSpace(c.Text()); text != "" {
					lines = append(lines, text)
				}
			}
		})
	})

	text := strings.Join(lines, "\n")
	if text == "" {
		text = strings.TrimSpace(doc.Text())
	}
	if len(text) > maxCleanedLength {
		text = text[:maxCleanedLength] + "..."
	}
	return text
}

// ExtractProducts asks the LLM for products matching the criteria in the
// given page. A response that cannot be parsed yields an empty slice and an
// error; the caller decides whether that fails the platform.
func (e *Extractor) ExtractProducts(ctx context.Context, html string, criteria models.SearchCriteria, platform models.Platform) ([]models.Product, error) {
	cleaned := CleanHTML(html)
	prompt := buildPrompt(cleaned, criteria, platform)

	response, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("llm extraction failed: %w", err)
	}

	products, err := parseProducts(response)
	if err != nil {
		e.logger.Error("failed to parse llm response", "platform", platform, "error", err)
		return []models.Product{}, err
	}

	// Stamp the platform tag; the model occasionally omits or mangles it.
	for i := range products {
		products[i].Platform = platform
	}

	e.logger.Info("extracted products", "platform", platform, "count", len(products))
	return products, nil
}

func buildPrompt(pageText string, criteria models.SearchCriteria, platform models.Platform) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an e-commerce product extraction assistant. Extract product listings from this %s search results page.\n\n", platform)
	b.WriteString("Search criteria:\n")
	fmt.Fprintf(&b, "- Brand: %s\n", orNA(criteria.Brand))
	fmt.Fprintf(&b, "- Model: %s\n", orNA(criteria.Model))
	if criteria.MaxPrice > 0 {
		fmt.Fprintf(&b, "- Maximum price: %.2f\n", criteria.MaxPrice)
	} else {
		b.WriteString("- Maximum price: N/A\n")
	}
	b.WriteString("\nPage content:\n")
	b.WriteString(pageText)
	b.WriteString("\n\nExtract every product that matches the criteria. Requirements:\n")
	b.WriteString("1. Only products matching the exact brand and model, no similar products\n")
	b.WriteString("2. Price must be within the maximum price when one is given\n")
	b.WriteString("3. Skip products with incomplete or uncertain information\n\n")
	b.WriteString("Respond with a JSON array only, no explanation:\n")
	fmt.Fprintf(&b, `[{"title":"...","price":999.00,"brand":"...","model":"...","url":"...","shop":"...","platform":"%s"}]`, platform)
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// parseProducts decodes a JSON array from the LLM response, tolerating
// markdown code fences around it.
func parseProducts(response string) ([]models.Product, error) {
	text := strings.TrimSpace(response)

	if idx := strings.Index(text, "```json"); idx >= 0 {
		text = text[idx+len("```json"):]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	} else if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+len("```"):]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}
	text = strings.TrimSpace(text)

	var products []models.Product
	if err := json.Unmarshal([]byte(text), &products); err != nil {
		return nil, fmt.Errorf("invalid product JSON: %w", err)
	}
	return products, nil
}

// MatchesCriteria reports whether a product satisfies the search criteria.
// Brand and model match when either trimmed lowercase string contains the
// other; the price must not exceed MaxPrice when one is set.
func MatchesCriteria(product models.Product, criteria models.SearchCriteria) bool {
	if criteria.Brand != "" && !looseMatch(product.Brand, criteria.Brand) {
		return false
	}
	if criteria.Model != "" && !looseMatch(product.Model, criteria.Model) {
		return false
	}
	if criteria.MaxPrice > 0 && product.Price > criteria.MaxPrice {
		return false
	}
	return true
}

func looseMatch(got, want string) bool {
	got = strings.ToLower(strings.TrimSpace(got))
	want = strings.ToLower(strings.TrimSpace(want))
	return strings.Contains(got, want) || strings.Contains(want, got)
}

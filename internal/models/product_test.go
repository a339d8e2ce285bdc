package models

import (
	"testing"
)

func TestNewSearchCriteria(t *testing.T) {
	tests := []struct {
		name     string
		brand    string
		model    string
		maxPrice float64
		wantErr  bool
	}{
		{"valid", "Apple", "iPhone 15 Pro", 8999, false},
		{"brand only", "Apple", "", 0, false},
		{"model only", "", "iPhone 15 Pro", 500, false},
		{"whitespace trimmed", "  Apple  ", "  iPhone  ", 100, false},
		{"empty", "", "", 100, true},
		{"negative price", "Apple", "iPhone", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSearchCriteria(tt.brand, tt.model, tt.maxPrice)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSearchCriteria(%q, %q, %v) error = %v, wantErr %v",
					tt.brand, tt.model, tt.maxPrice, err, tt.wantErr)
			}
		})
	}
}

func TestSearchCriteriaQuery(t *testing.T) {
	tests := []struct {
		name     string
		brand    string
		model    string
		expected string
	}{
		{"both", "Apple", "iPhone 15 Pro", "Apple iPhone 15 Pro"},
		{"brand only", "Apple", "", "Apple"},
		{"model only", "", "iPhone", "iPhone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewSearchCriteria(tt.brand, tt.model, 0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := c.Query(); got != tt.expected {
				t.Errorf("Query() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestProductDedupeKey(t *testing.T) {
	a := Product{Title: " iPhone 15 Pro 256GB ", Price: 7999, Platform: PlatformJD}
	b := Product{Title: "iphone 15 pro 256gb", Price: 7999, Platform: PlatformTaobao, Shop: "other shop"}

	if a.DedupeKey() != b.DedupeKey() {
		t.Errorf("expected identical keys, got %q and %q", a.DedupeKey(), b.DedupeKey())
	}

	c := Product{Title: "iphone 15 pro 256gb", Price: 7998}
	if a.DedupeKey() == c.DedupeKey() {
		t.Error("different prices must not collapse to one key")
	}
}

func TestErrorResult(t *testing.T) {
	res := ErrorResult(PlatformPDD, nil)
	if res.Status != StatusError {
		t.Errorf("expected status error, got %s", res.Status)
	}
	if res.Error == "" {
		t.Error("expected a non-empty error message for nil error")
	}
	if res.Count != 0 || len(res.Products) != 0 {
		t.Error("error result must not carry products")
	}
}

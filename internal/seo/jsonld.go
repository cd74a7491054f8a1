package seo

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// schema.org availability values
const (
	InStock    = "https://schema.org/InStock"
	OutOfStock = "https://schema.org/OutOfStock"
)

// JSON marshals v to a compact JSON string. It returns an empty string on error.
func JSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Offer describes a single purchasable offer of a product.
type Offer struct {
	Price    decimal.Decimal
	Currency string
	InStock  bool
	URL      string
}

// Product returns a product schema payload, with an Offer when one is given.
func Product(name, description, url string, images []string, sku string, offer *Offer) map[string]any {
	m := map[string]any{
		"@context": "https://schema.org",
		"@type":    "Product",
		"name":     name,
	}
	if description != "" {
		m["description"] = description
	}
	if url != "" {
		m["url"] = url
	}
	if len(images) > 0 {
		m["image"] = images
	}
	if sku != "" {
		m["sku"] = sku
	}
	if offer != nil {
		availability := OutOfStock
		if offer.InStock {
			availability = InStock
		}
		o := map[string]any{
			"@type":         "Offer",
			"price":         offer.Price.StringFixed(2),
			"priceCurrency": offer.Currency,
			"availability":  availability,
		}
		if offer.URL != "" {
			o["url"] = offer.URL
		}
		m["offers"] = o
	}
	return m
}

// BreadcrumbItem maps name and absolute item URL.
type BreadcrumbItem struct {
	Name string
	Item string
}

// BreadcrumbList builds schema.org BreadcrumbList.
func BreadcrumbList(items []BreadcrumbItem) map[string]any {
	el := make([]map[string]any, 0, len(items))
	for i, it := range items {
		el = append(el, map[string]any{
			"@type":    "ListItem",
			"position": i + 1,
			"name":     it.Name,
			"item":     it.Item,
		})
	}
	return map[string]any{
		"@context":        "https://schema.org",
		"@type":           "BreadcrumbList",
		"itemListElement": el,
	}
}

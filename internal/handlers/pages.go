package handlers

import (
	"finitefield.org/hanko-shop/internal/cart"
	"finitefield.org/hanko-shop/internal/nav"
	"finitefield.org/hanko-shop/internal/seo"
)

// PageData is the view model for pages using the shared layout.
type PageData struct {
	Title     string
	Lang      string
	SEO       seo.Meta
	Analytics Analytics

	Path        string
	Nav         []nav.RenderedItem
	Breadcrumbs []nav.Crumb
	CSRFToken   string
	User        *cart.User
	LoginURL    string
	DevLogin    bool

	// Optional per-page view model payloads
	Product any
	Cart    any
	Notice  any
	Login   any
}

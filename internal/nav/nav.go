package nav

import "strings"

// Item represents a top-level navigation item.
type Item struct {
	Path     string
	LabelKey string
}

// RenderedItem is a view model for templates.
type RenderedItem struct {
	Href     string
	LabelKey string
	Active   bool
}

// Crumb represents a breadcrumb entry. If LabelKey is empty, use Label.
type Crumb struct {
	Href     string
	LabelKey string
	Label    string
	Active   bool
}

// Main is the primary navigation definition.
var Main = []Item{
	{Path: "/", LabelKey: "nav.home"},
	{Path: "/cart", LabelKey: "nav.cart"},
}

// Build renders navigation items with active state given the current path.
func Build(currentPath string) []RenderedItem {
	if currentPath == "" {
		currentPath = "/"
	}
	items := make([]RenderedItem, 0, len(Main))
	for _, it := range Main {
		items = append(items, RenderedItem{
			Href:     it.Path,
			LabelKey: it.LabelKey,
			Active:   isActive(it.Path, currentPath),
		})
	}
	return items
}

func isActive(itemPath, currentPath string) bool {
	if itemPath == "/" {
		return currentPath == "/"
	}
	return currentPath == itemPath || strings.HasPrefix(currentPath, itemPath+"/")
}

// ProductCrumbs returns Home > Shop > product name, the last entry active.
func ProductCrumbs(productPath, productName string) []Crumb {
	return []Crumb{
		{Href: "/", LabelKey: "nav.home"},
		{Href: "/", LabelKey: "nav.shop"},
		{Href: productPath, Label: productName, Active: true},
	}
}

// PageCrumbs returns Home > page for simple top-level pages.
func PageCrumbs(path, labelKey string) []Crumb {
	return []Crumb{
		{Href: "/", LabelKey: "nav.home"},
		{Href: path, LabelKey: labelKey, Active: true},
	}
}

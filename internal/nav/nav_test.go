package nav

import "testing"

func TestBuildActive(t *testing.T) {
	tests := []struct {
		path string
		want map[string]bool
	}{
		{path: "", want: map[string]bool{"/": true, "/cart": false}},
		{path: "/cart", want: map[string]bool{"/": false, "/cart": true}},
		{path: "/cart/items", want: map[string]bool{"/": false, "/cart": true}},
		{path: "/cartography", want: map[string]bool{"/": false, "/cart": false}},
		{path: "/products/1", want: map[string]bool{"/": false, "/cart": false}},
	}
	for _, tt := range tests {
		for _, item := range Build(tt.path) {
			if item.Active != tt.want[item.Href] {
				t.Errorf("Build(%q): %s active=%v, want %v", tt.path, item.Href, item.Active, tt.want[item.Href])
			}
		}
	}
}

func TestProductCrumbs(t *testing.T) {
	crumbs := ProductCrumbs("/products/7", "Sello")
	if len(crumbs) != 3 {
		t.Fatalf("expected 3 crumbs, got %d", len(crumbs))
	}
	last := crumbs[2]
	if !last.Active || last.Label != "Sello" || last.Href != "/products/7" {
		t.Fatalf("unexpected last crumb %+v", last)
	}
}

// Package gallery models the ordered image list of a product page.
package gallery

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// ErrIndexOutOfRange is returned when a thumbnail index does not exist.
var ErrIndexOutOfRange = errors.New("gallery: index out of range")

// List is an ordered sequence of image URLs. Index 0 is the active image.
type List []string

// Active returns the large image, or "" for an empty list.
func (l List) Active() string {
	if len(l) == 0 {
		return ""
	}
	return l[0]
}

// HasThumbnails reports whether the thumbnail strip is shown.
func (l List) HasThumbnails() bool { return len(l) > 1 }

// RotateToFront returns a new list with element i first and the remaining
// elements in their previous relative order.
func (l List) RotateToFront(i int) (List, error) {
	out, err := rotateToFront(l, i)
	return List(out), err
}

// Order is a permutation of the image indices in API order. It lets the
// current arrangement travel in a URL between requests.
type Order []int

// Identity returns the API order for n images.
func Identity(n int) Order {
	o := make(Order, n)
	for i := range o {
		o[i] = i
	}
	return o
}

// ParseOrder decodes a comma separated permutation of [0,n). Anything that is
// not a valid permutation yields the identity order.
func ParseOrder(raw string, n int) Order {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity(n)
	}
	parts := strings.Split(raw, ",")
	if len(parts) != n {
		return Identity(n)
	}
	seen := make([]bool, n)
	o := make(Order, 0, n)
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 || v >= n || seen[v] {
			return Identity(n)
		}
		seen[v] = true
		o = append(o, v)
	}
	return o
}

// String encodes the order for use in a query string.
func (o Order) String() string {
	parts := make([]string, len(o))
	for i, v := range o {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// IsIdentity reports whether the order is unchanged from the API order.
func (o Order) IsIdentity() bool {
	for i, v := range o {
		if i != v {
			return false
		}
	}
	return true
}

// RotateToFront moves position i to the front, keeping the rest stable.
func (o Order) RotateToFront(i int) (Order, error) {
	out, err := rotateToFront(o, i)
	return Order(out), err
}

// Apply arranges urls according to the order. len(urls) must match.
func (o Order) Apply(urls []string) List {
	if len(o) != len(urls) {
		return List(append([]string{}, urls...))
	}
	out := make(List, len(o))
	for i, idx := range o {
		out[i] = urls[idx]
	}
	return out
}

func rotateToFront[T any](s []T, i int) ([]T, error) {
	if i < 0 || i >= len(s) {
		return nil, ErrIndexOutOfRange
	}
	out := make([]T, 0, len(s))
	out = append(out, s[i])
	out = append(out, s[:i]...)
	out = append(out, s[i+1:]...)
	return out, nil
}

// URLBuilder joins image references onto the configured image host.
type URLBuilder struct {
	base string
}

// NewURLBuilder validates base and returns a builder. An empty base leaves
// references untouched.
func NewURLBuilder(base string) (URLBuilder, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return URLBuilder{}, nil
	}
	u, err := url.Parse(base)
	if err != nil {
		return URLBuilder{}, err
	}
	if u.Scheme == "" || u.Host == "" {
		return URLBuilder{}, errors.New("gallery: image base must be an absolute URL")
	}
	return URLBuilder{base: base}, nil
}

// Resolve returns the fetchable URL for ref. Absolute references pass through.
func (b URLBuilder) Resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		return ref
	}
	if b.base == "" {
		return ref
	}
	return b.base + "/" + strings.TrimLeft(ref, "/")
}

// ResolveAll resolves every reference in l.
func (b URLBuilder) ResolveAll(l List) List {
	out := make(List, len(l))
	for i, ref := range l {
		out[i] = b.Resolve(ref)
	}
	return out
}

package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ImageRefKind tags the shape the API used for a product's image reference.
type ImageRefKind uint8

const (
	ImageRefNone ImageRefKind = iota
	ImageRefSingle
	ImageRefList
)

func (k ImageRefKind) String() string {
	switch k {
	case ImageRefSingle:
		return "single"
	case ImageRefList:
		return "list"
	default:
		return "none"
	}
}

// ImageRef is either a single image URL or a list of image URLs.
// The zero value carries no images.
type ImageRef struct {
	kind ImageRefKind
	urls []string
}

// SingleImage wraps one URL. An empty URL yields no images.
func SingleImage(url string) ImageRef {
	if strings.TrimSpace(url) == "" {
		return ImageRef{}
	}
	return ImageRef{kind: ImageRefSingle, urls: []string{url}}
}

// ImageListRef wraps an ordered list of URLs. Blank entries are dropped.
func ImageListRef(urls ...string) ImageRef {
	kept := make([]string, 0, len(urls))
	for _, u := range urls {
		if strings.TrimSpace(u) != "" {
			kept = append(kept, u)
		}
	}
	return ImageRef{kind: ImageRefList, urls: kept}
}

// ParseImageRef decodes the string form of the image field. A JSON array of
// strings becomes a list; anything else non-empty is taken as a single URL.
func ParseImageRef(raw string) ImageRef {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ImageRef{}
	}
	var urls []string
	if err := json.Unmarshal([]byte(trimmed), &urls); err == nil {
		return ImageListRef(urls...)
	}
	return SingleImage(raw)
}

// Kind reports which variant the reference holds.
func (r ImageRef) Kind() ImageRefKind { return r.kind }

// URLs returns a copy of the referenced URLs in API order.
func (r ImageRef) URLs() []string {
	if len(r.urls) == 0 {
		return []string{}
	}
	return append([]string(nil), r.urls...)
}

// UnmarshalJSON accepts null, a plain string (possibly holding a JSON-encoded
// array) or a JSON array of strings.
func (r *ImageRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*r = ImageRef{}
		return nil
	case data[0] == '"':
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("catalog: decode image reference: %w", err)
		}
		*r = ParseImageRef(raw)
		return nil
	case data[0] == '[':
		var urls []string
		if err := json.Unmarshal(data, &urls); err != nil {
			return fmt.Errorf("catalog: decode image list: %w", err)
		}
		*r = ImageListRef(urls...)
		return nil
	default:
		return fmt.Errorf("catalog: unsupported image reference %s", truncate(string(data), 32))
	}
}

// MarshalJSON emits the list form, or the bare string for a single image.
func (r ImageRef) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case ImageRefSingle:
		return json.Marshal(r.urls[0])
	case ImageRefList:
		return json.Marshal(r.URLs())
	default:
		return []byte("null"), nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

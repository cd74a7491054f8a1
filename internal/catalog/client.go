package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultTimeout = 8 * time.Second
	tracerName     = "finitefield.org/hanko-shop/internal/catalog"
)

// fetch outcomes recorded on the latency histogram
const (
	outcomeOK       = "ok"
	outcomeNotFound = "not_found"
	outcomeInvalid  = "invalid"
	outcomeError    = "error"
)

// Fetcher loads a single product by identifier.
type Fetcher interface {
	ProductByID(ctx context.Context, id string) (Product, error)
}

// Client reads products from the catalog API. When baseURL is empty, the client serves demo data.
type Client struct {
	baseURL  string
	http     *http.Client
	tracer   trace.Tracer
	meter    metric.Meter
	latency  metric.Float64Histogram
	validate *validator.Validate
	fake     map[string]Product
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) ClientOption {
	return func(c *Client) {
		if mp != nil {
			c.meter = mp.Meter(tracerName)
		}
	}
}

// NewClient constructs an API client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:     &http.Client{Timeout: defaultTimeout},
		tracer:   otel.Tracer(tracerName),
		meter:    otel.GetMeterProvider().Meter(tracerName),
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// a nil histogram disables latency recording
	if h, err := c.meter.Float64Histogram(
		"catalog.product.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for product fetches"),
	); err == nil {
		c.latency = h
	}
	if c.baseURL == "" {
		c.fake = fakeProducts()
	}
	return c
}

// ProductByID fetches the product with the given identifier.
func (c *Client) ProductByID(ctx context.Context, id string) (Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, ErrMissingID
	}

	ctx, span := c.tracer.Start(ctx, "catalog.ProductByID", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	start := time.Now()
	var (
		p   Product
		err error
	)
	if id == "." || id == ".." {
		// dot segments would be cleaned out of the request path
		err = fmt.Errorf("%w: %s", ErrNotFound, id)
	} else {
		p, err = c.fetch(ctx, id)
	}
	c.recordLatency(ctx, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Product{}, err
	}
	span.SetAttributes(attribute.String("product.images", p.Images.Kind().String()))
	return p, nil
}

func (c *Client) recordLatency(ctx context.Context, d time.Duration, err error) {
	if c.latency == nil {
		return
	}
	outcome := outcomeOK
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		outcome = outcomeNotFound
	case errors.Is(err, ErrInvalidProduct):
		outcome = outcomeInvalid
	default:
		outcome = outcomeError
	}
	c.latency.Record(ctx, float64(d)/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (c *Client) fetch(ctx context.Context, id string) (Product, error) {
	if c.baseURL == "" {
		p, ok := c.fake[id]
		if !ok {
			return Product{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return p, nil
	}

	endpoint, err := url.JoinPath(c.baseURL, "products", url.PathEscape(id))
	if err != nil {
		return Product{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Product{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Product{}, fmt.Errorf("catalog: get product %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Product{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if resp.StatusCode >= 400 {
		return Product{}, fmt.Errorf("catalog: product status %d: %s", resp.StatusCode, drainError(resp.Body))
	}

	var payload productPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Product{}, fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	p := payload.toProduct(id)
	if err := c.validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return Product{}, fmt.Errorf("%w: %s", ErrInvalidProduct, verrs.Error())
		}
		return Product{}, fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	return p, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// productPayload accepts both the English field names and the Spanish ones
// still emitted by the legacy product API.
type productPayload struct {
	ID          flexibleID          `json:"id"`
	Name        string              `json:"name"`
	Nombre      string              `json:"nombre"`
	Description string              `json:"description"`
	Descripcion string              `json:"descripcion"`
	Price       decimal.NullDecimal `json:"price"`
	Precio      decimal.NullDecimal `json:"precio"`
	Stock       *int                `json:"stock"`
	ImageRef    ImageRef            `json:"imageRef"`
	ImageURL    ImageRef            `json:"imageUrl"`
	ImagenURL   ImageRef            `json:"imagenUrl"`
}

func (p productPayload) toProduct(requestedID string) Product {
	out := Product{
		ID:          defaultString(string(p.ID), requestedID),
		Name:        defaultString(p.Name, p.Nombre),
		Description: defaultString(p.Description, p.Descripcion),
	}
	switch {
	case p.Price.Valid:
		out.Price = p.Price.Decimal
	case p.Precio.Valid:
		out.Price = p.Precio.Decimal
	}
	if p.Stock != nil {
		out.Stock = *p.Stock
	}
	for _, ref := range []ImageRef{p.ImageRef, p.ImageURL, p.ImagenURL} {
		if ref.Kind() != ImageRefNone {
			out.Images = ref
			break
		}
	}
	return out
}

// flexibleID accepts numeric or string identifiers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(strings.TrimSpace(s))
		return nil
	}
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = flexibleID(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexibleID(n.String())
	return nil
}

func defaultString(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return strings.TrimSpace(fallback)
	}
	return strings.TrimSpace(val)
}

func drainError(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}

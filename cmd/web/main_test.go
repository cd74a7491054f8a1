package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"finitefield.org/hanko-shop/internal/cart"
	"finitefield.org/hanko-shop/internal/catalog"
	"finitefield.org/hanko-shop/internal/config"
)

// recordingStore counts Add calls on top of a MemoryStore.
type recordingStore struct {
	*cart.MemoryStore
	mu   sync.Mutex
	adds []string
}

func (s *recordingStore) Add(ctx context.Context, userID string, p catalog.Product) (cart.Line, error) {
	s.mu.Lock()
	s.adds = append(s.adds, userID+":"+p.ID)
	s.mu.Unlock()
	return s.MemoryStore.Add(ctx, userID, p)
}

func (s *recordingStore) Adds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.adds...)
}

type failingFetcher struct{}

func (failingFetcher) ProductByID(context.Context, string) (catalog.Product, error) {
	return catalog.Product{}, errors.New("connection refused")
}

type testServer struct {
	handler http.Handler
	store   *recordingStore
	logs    *observer.ObservedLogs
}

func newTestServer(t *testing.T, env map[string]string, fetcher catalog.Fetcher) *testServer {
	t.Helper()
	values := map[string]string{
		"HANKO_SHOP_TEMPLATES":   "../../templates",
		"HANKO_SHOP_PUBLIC":      "../../public",
		"HANKO_SHOP_LOCALES_DIR": "../../locales",
	}
	for k, v := range env {
		values[k] = v
	}
	cfg, err := config.Load(config.WithoutSystemEnv(), config.WithEnvFile(""), config.WithEnvMap(values))
	require.NoError(t, err)

	if fetcher == nil {
		fetcher = catalog.NewClient("")
	}
	core, logs := observer.New(zapcore.DebugLevel)
	store := &recordingStore{MemoryStore: cart.NewMemoryStore(nil)}
	a, err := newApp(cfg, zap.New(core), fetcher, store)
	require.NoError(t, err)
	return &testServer{handler: a.routes(), store: store, logs: logs}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func parseDoc(t *testing.T, rec *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rec.Body.String()))
	require.NoError(t, err)
	return doc
}

// browser keeps cookies between requests like a real client.
type browser struct {
	srv     *testServer
	cookies map[string]*http.Cookie
}

func newBrowser(srv *testServer) *browser {
	return &browser{srv: srv, cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := b.srv.do(req)
	for _, c := range rec.Result().Cookies() {
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) csrfToken(t *testing.T) string {
	t.Helper()
	c, ok := b.cookies["csrf_token"]
	require.True(t, ok, "csrf cookie not issued")
	return c.Value
}

func (b *browser) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func TestHealthzOK(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rec := srv.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", strings.TrimSpace(rec.Body.String()))
}

func TestProductPageLoaded(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rec := srv.do(httptest.NewRequest(http.MethodGet, "/products/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	doc := parseDoc(t, rec)

	require.Equal(t, "Sello de madera clásico", strings.TrimSpace(doc.Find("h1.product-name").Text()))
	require.Equal(t, "En stock", strings.TrimSpace(doc.Find(".product-stock").Text()))
	require.Equal(t, "149,90 Bs", strings.TrimSpace(doc.Find(".product-price strong").Text()))
	require.Equal(t, "madera de cerezo", doc.Find(".product-description strong").Text())
	require.Zero(t, doc.Find(".product-loading").Length())
	require.Zero(t, doc.Find(".product-not-found").Length())

	main := doc.Find(".gallery-main img.gallery-active")
	require.Equal(t, 1, main.Length())
	src, _ := main.Attr("src")
	require.Equal(t, "http://localhost:3000/uploads/sello-1.jpg", src)
	zoom, _ := main.Attr("data-zoom")
	require.Equal(t, src, zoom)
	alt, _ := main.Attr("alt")
	require.Equal(t, "Sello de madera clásico", alt)

	thumbs := doc.Find(".gallery-thumbs img")
	require.Equal(t, 3, thumbs.Length())
	var alts []string
	thumbs.Each(func(_ int, s *goquery.Selection) {
		a, _ := s.Attr("alt")
		alts = append(alts, a)
	})
	require.Equal(t, []string{"Imagen 1", "Imagen 2", "Imagen 3"}, alts)

	var badges []string
	doc.Find(".trust-badge").Each(func(_ int, s *goquery.Selection) {
		badges = append(badges, strings.TrimSpace(s.Text()))
	})
	require.Equal(t, []string{"Pago seguro", "2 años de garantía total"}, badges)

	action, _ := doc.Find("form.add-to-cart").Attr("action")
	require.Equal(t, "/products/1/cart", action)

	var ld map[string]any
	require.NoError(t, json.Unmarshal([]byte(doc.Find(`script[type="application/ld+json"]`).Text()), &ld))
	require.Equal(t, "Product", ld["@type"])
	offer := ld["offers"].(map[string]any)
	require.Equal(t, "149.90", offer["price"])
	require.Equal(t, "https://schema.org/InStock", offer["availability"])
}

func TestProductPageStockAndImages(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	t.Run("out of stock single image", func(t *testing.T) {
		rec := srv.do(httptest.NewRequest(http.MethodGet, "/products/2", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		doc := parseDoc(t, rec)
		require.Equal(t, "Agotado", strings.TrimSpace(doc.Find(".product-stock").Text()))
		require.Equal(t, 1, doc.Find("img.gallery-active").Length())
		require.Zero(t, doc.Find(".gallery-thumbs").Length())
	})

	t.Run("no images shows placeholder", func(t *testing.T) {
		rec := srv.do(httptest.NewRequest(http.MethodGet, "/products/3", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		doc := parseDoc(t, rec)
		img := doc.Find("img.gallery-placeholder")
		require.Equal(t, 1, img.Length())
		src, _ := img.Attr("src")
		require.Equal(t, "/assets/images/product.svg", src)
		alt, _ := img.Attr("alt")
		require.Equal(t, "Producto sin imagen", alt)
		_, zoom := img.Attr("data-zoom")
		require.False(t, zoom)
	})

	t.Run("english labels", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/products/1", nil)
		req.Header.Set("Accept-Language", "en")
		doc := parseDoc(t, srv.do(req))
		require.Equal(t, "In stock", strings.TrimSpace(doc.Find(".product-stock").Text()))
		require.Equal(t, "149.90 Bs", strings.TrimSpace(doc.Find(".product-price strong").Text()))
	})
}

func TestProductPageNotFound(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rec := srv.do(httptest.NewRequest(http.MethodGet, "/products/404", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	doc := parseDoc(t, rec)
	require.Equal(t, "Producto no encontrado.", strings.TrimSpace(doc.Find(".product-not-found").Text()))
	require.Zero(t, doc.Find(".product-name").Length())
	require.Zero(t, doc.Find(`script[type="application/ld+json"]`).Length())
}

func TestProductPageDotSegmentNotFound(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"id":1,"name":"API root index","price":1,"stock":1}`))
	}))
	defer upstream.Close()

	srv := newTestServer(t, nil, catalog.NewClient(upstream.URL+"/api/v1"))
	for _, target := range []string{"/products/..", "/products/."} {
		rec := srv.do(httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusNotFound, rec.Code, target)
		doc := parseDoc(t, rec)
		require.Equal(t, 1, doc.Find(".product-not-found").Length(), target)
		require.Zero(t, doc.Find(".product-name").Length(), target)
	}
	mu.Lock()
	defer mu.Unlock()
	require.Empty(t, paths)
}

func TestProductPageFetchFailureLogged(t *testing.T) {
	srv := newTestServer(t, nil, failingFetcher{})
	rec := srv.do(httptest.NewRequest(http.MethodGet, "/products/1", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, 1, parseDoc(t, rec).Find(".product-not-found").Length())

	entries := srv.logs.FilterMessage("product fetch failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, "1", entries[0].ContextMap()["product_id"])
}

func TestProductPageHonoursOrder(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	doc := parseDoc(t, srv.do(httptest.NewRequest(http.MethodGet, "/products/1?order=2,0,1", nil)))
	src, _ := doc.Find("img.gallery-active").Attr("src")
	require.Equal(t, "http://localhost:3000/uploads/sello-3.jpg", src)

	// invalid permutations fall back to the API order
	doc = parseDoc(t, srv.do(httptest.NewRequest(http.MethodGet, "/products/1?order=2,2,1", nil)))
	src, _ = doc.Find("img.gallery-active").Attr("src")
	require.Equal(t, "http://localhost:3000/uploads/sello-1.jpg", src)
}

func TestGalleryFragmentRotatesToFront(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/products/1/gallery?order=0,1,2&select=2", nil)
	req.Header.Set("HX-Request", "true")
	rec := srv.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "/products/1?order=2%2C0%2C1", rec.Header().Get("HX-Push-Url"))

	doc := parseDoc(t, rec)
	require.Zero(t, doc.Find("html header.site-header").Length(), "fragment must not include the layout")
	var srcs []string
	doc.Find(".gallery-thumbs img").Each(func(_ int, s *goquery.Selection) {
		v, _ := s.Attr("src")
		srcs = append(srcs, strings.TrimPrefix(v, "http://localhost:3000"))
	})
	require.Equal(t, []string{"/uploads/sello-3.jpg", "/uploads/sello-1.jpg", "/uploads/sello-2.jpg"}, srcs)
	main, _ := doc.Find("img.gallery-active").Attr("src")
	require.Equal(t, "http://localhost:3000/uploads/sello-3.jpg", main)

	// selecting again composes with the current arrangement
	req = httptest.NewRequest(http.MethodGet, "/products/1/gallery?order=2,0,1&select=2", nil)
	req.Header.Set("HX-Request", "true")
	rec = srv.do(req)
	require.Equal(t, "/products/1?order=1%2C2%2C0", rec.Header().Get("HX-Push-Url"))
}

func TestGalleryFragmentErrors(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rec := srv.do(httptest.NewRequest(http.MethodGet, "/products/1/gallery?select=7", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(httptest.NewRequest(http.MethodGet, "/products/1/gallery?select=x", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(httptest.NewRequest(http.MethodGet, "/products/404/gallery?select=0", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestThumbnailLinksWorkWithoutScript(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	doc := parseDoc(t, srv.do(httptest.NewRequest(http.MethodGet, "/products/1", nil)))
	var hrefs []string
	doc.Find(".gallery-thumbs a").Each(func(_ int, s *goquery.Selection) {
		h, _ := s.Attr("href")
		hrefs = append(hrefs, h)
	})
	require.Equal(t, []string{
		"/products/1",
		"/products/1?order=1%2C0%2C2",
		"/products/1?order=2%2C0%2C1",
	}, hrefs)
}

func TestAddToCartAnonymousShowsNotice(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	b := newBrowser(srv)
	require.Equal(t, http.StatusOK, b.do(httptest.NewRequest(http.MethodGet, "/products/1", nil)).Code)

	rec := b.postForm("/products/1/cart", url.Values{"csrf_token": {b.csrfToken(t)}})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, rec.Header().Get("Location"))
	doc := parseDoc(t, rec)
	require.Contains(t, doc.Find(".notice").Text(), "Debes iniciar sesión")
	login, _ := doc.Find(".notice a").Attr("href")
	require.Equal(t, "/login?next=%2Fproducts%2F1", login)
	require.Empty(t, srv.store.Adds())
}

func TestAddToCartAnonymousHTMX(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	b := newBrowser(srv)
	b.do(httptest.NewRequest(http.MethodGet, "/products/1", nil))

	req := httptest.NewRequest(http.MethodPost, "/products/1/cart", nil)
	req.Header.Set("HX-Request", "true")
	req.Header.Set("X-CSRF-Token", b.csrfToken(t))
	rec := b.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "#notice", rec.Header().Get("HX-Retarget"))
	require.Empty(t, rec.Header().Get("HX-Redirect"))
	require.Contains(t, rec.Body.String(), "Debes iniciar sesión")
	require.Empty(t, srv.store.Adds())
}

func TestAddToCartAuthenticated(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/products/1/cart", nil)
	req.Header.Set("Authorization", "Bearer debug:alice")
	rec := srv.do(req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/cart", rec.Header().Get("Location"))
	require.Equal(t, []string{"alice:1"}, srv.store.Adds())

	req = httptest.NewRequest(http.MethodGet, "/cart", nil)
	req.Header.Set("Authorization", "Bearer debug:alice")
	rec = srv.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := parseDoc(t, rec)
	require.Equal(t, 1, doc.Find(".cart-line").Length())
	require.Equal(t, "Sello de madera clásico", strings.TrimSpace(doc.Find(".cart-line a").Text()))
	require.Equal(t, "1", strings.TrimSpace(doc.Find(".cart-qty").Text()))
	require.Equal(t, "149,90 Bs", strings.TrimSpace(doc.Find(".cart-total").Text()))
}

func TestAddToCartAuthenticatedHTMX(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/products/2/cart", nil)
	req.Header.Set("Authorization", "Bearer debug:bob")
	req.Header.Set("HX-Request", "true")
	rec := srv.do(req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "/cart", rec.Header().Get("HX-Redirect"))
	require.Equal(t, []string{"bob:2"}, srv.store.Adds())
}

func TestAddToCartUnknownProduct(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/products/404/cart", nil)
	req.Header.Set("Authorization", "Bearer debug:alice")
	rec := srv.do(req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, srv.store.Adds())
}

func TestAddToCartRequiresCSRF(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	b := newBrowser(srv)
	b.do(httptest.NewRequest(http.MethodGet, "/products/1", nil))
	rec := b.postForm("/products/1/cart", url.Values{})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, srv.store.Adds())
}

func TestCartRequiresSignIn(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rec := srv.do(httptest.NewRequest(http.MethodGet, "/cart", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, parseDoc(t, rec).Find(".notice").Text(), "Inicia sesión para ver tu carrito.")
}

func TestDevLoginFlow(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	b := newBrowser(srv)

	rec := b.do(httptest.NewRequest(http.MethodGet, "/login?next=/products/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	next, _ := parseDoc(t, rec).Find(`input[name="next"]`).Attr("value")
	require.Equal(t, "/products/1", next)

	rec = b.postForm("/login", url.Values{"csrf_token": {b.csrfToken(t)}, "next": {"/products/1"}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = b.postForm("/login", url.Values{"csrf_token": {b.csrfToken(t)}, "uid": {"carol"}, "next": {"//evil.example.com"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/", rec.Header().Get("Location"))

	// the session id and csrf token rotate on sign in
	b.do(httptest.NewRequest(http.MethodGet, "/products/1", nil))
	rec = b.postForm("/products/1/cart", url.Values{"csrf_token": {b.csrfToken(t)}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, []string{"carol:1"}, srv.store.Adds())

	rec = b.do(httptest.NewRequest(http.MethodGet, "/cart", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, parseDoc(t, rec).Find(".cart-line").Length())
}

func TestDevHelpersDisabledInProd(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"HANKO_SHOP_ENV":              "prod",
		"HANKO_SHOP_SESSION_HASH_KEY": strings.Repeat("s", 32),
	}, nil)
	rec := srv.do(httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/products/1/cart", nil)
	req.Header.Set("Authorization", "Bearer debug:alice")
	rec = srv.do(req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, srv.store.Adds())
}

func TestLazyDetail(t *testing.T) {
	srv := newTestServer(t, map[string]string{"HANKO_SHOP_LAZY_DETAIL": "true"}, nil)

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/products/1?order=1,0,2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	doc := parseDoc(t, rec)
	loading := doc.Find(".product-loading")
	require.Equal(t, 1, loading.Length())
	require.Equal(t, "Cargando...", strings.TrimSpace(loading.Text()))
	get, _ := loading.Attr("hx-get")
	require.Equal(t, "/products/1/detail?order=1%2C0%2C2", get)
	require.Zero(t, doc.Find(".product-name").Length())

	rec = srv.do(httptest.NewRequest(http.MethodGet, get, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	frag := parseDoc(t, rec)
	require.Equal(t, "Sello de madera clásico", strings.TrimSpace(frag.Find("h1.product-name").Text()))
	src, _ := frag.Find("img.gallery-active").Attr("src")
	require.Equal(t, "http://localhost:3000/uploads/sello-2.jpg", src)

	rec = srv.do(httptest.NewRequest(http.MethodGet, "/products/404/detail", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, parseDoc(t, rec).Find(".product-not-found").Length())
}

func TestAssetsServedWithETag(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rec := srv.do(httptest.NewRequest(http.MethodGet, "/assets/images/product.svg", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("ETag"))
	require.Contains(t, rec.Body.String(), "<svg")
}

func TestUnknownRouteNotFound(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	rec := srv.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

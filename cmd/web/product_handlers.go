package main

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"finitefield.org/hanko-shop/internal/cart"
	"finitefield.org/hanko-shop/internal/gallery"
	mw "finitefield.org/hanko-shop/internal/middleware"
	"finitefield.org/hanko-shop/internal/nav"
	"finitefield.org/hanko-shop/internal/observability"
	"finitefield.org/hanko-shop/internal/productview"
)

// loadProduct mounts a view for the {id} route parameter and waits for its
// single fetch. The view is closed before returning.
func (a *app) loadProduct(r *http.Request) productview.State {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	view := productview.New(a.catalog, productview.WithLogger(observability.FromContext(r.Context())))
	defer view.Close()
	return view.Load(r.Context(), id)
}

// ProductHandler renders the product detail page. In lazy mode the page is
// served in its loading state and the detail is fetched by the client.
func (a *app) ProductHandler(w http.ResponseWriter, r *http.Request) {
	lang := mw.Lang(r)
	id := strings.TrimSpace(chi.URLParam(r, "id"))

	var st productview.State
	if a.cfg.LazyDetail {
		st = productview.State{ID: id, Loading: true, Images: gallery.List{}}
	} else {
		st = a.loadProduct(r)
	}
	order := gallery.ParseOrder(r.URL.Query().Get("order"), len(st.Images))
	view := a.buildProductView(lang, mw.CSRFToken(r), st, order)
	if raw := r.URL.Query().Get("order"); a.cfg.LazyDetail && raw != "" {
		// the image count is unknown until the detail loads
		view.DetailURL += "?" + url.Values{"order": {raw}}.Encode()
	}

	title := a.bundle.T(lang, "product.not_found")
	crumbs := nav.PageCrumbs(productPath(id), "nav.shop")
	switch {
	case st.Loading:
		title = a.bundle.T(lang, "product.loading")
	case st.Product != nil:
		title = st.Product.Name
		crumbs = nav.ProductCrumbs(productPath(id), st.Product.Name)
	}

	vm := a.pageData(r, title, crumbs)
	vm.Product = view
	if st.Product != nil {
		vm.SEO.Description = st.Product.Description
		vm.SEO.OG.Type = "product"
		if !view.Gallery.Placeholder {
			vm.SEO.OG.Image = view.Gallery.Main
		}
		vm.SEO.JSONLD = append(vm.SEO.JSONLD, a.productJSONLD(vm.SEO.Canonical, *st.Product, st.Images))
	}

	status := http.StatusOK
	if st.NotFound() {
		status = http.StatusNotFound
		vm.SEO.Robots = "noindex"
	}
	a.renderPage(w, r, status, "product", vm)
}

// ProductDetailFrag renders the loaded or not-found body for lazy mode. It
// always answers 200 so htmx swaps the not-found message in.
func (a *app) ProductDetailFrag(w http.ResponseWriter, r *http.Request) {
	st := a.loadProduct(r)
	order := gallery.ParseOrder(r.URL.Query().Get("order"), len(st.Images))
	view := a.buildProductView(mw.Lang(r), mw.CSRFToken(r), st, order)
	a.renderTemplate(w, r, http.StatusOK, "frag_product_detail", view)
}

// ProductGalleryFrag brings thumbnail ?select=i of the arrangement ?order= to
// the front and re-renders the gallery, pushing the new order into the URL.
func (a *app) ProductGalleryFrag(w http.ResponseWriter, r *http.Request) {
	st := a.loadProduct(r)
	if st.Product == nil {
		a.renderTemplate(w, r, http.StatusNotFound, "frag_not_found", map[string]any{"Lang": mw.Lang(r)})
		return
	}
	order := gallery.ParseOrder(r.URL.Query().Get("order"), len(st.Images))
	if raw := r.URL.Query().Get("select"); raw != "" {
		i, err := strconv.Atoi(raw)
		if err == nil {
			order, err = order.RotateToFront(i)
		}
		if err != nil {
			http.Error(w, "invalid thumbnail", http.StatusBadRequest)
			return
		}
	}
	view := a.buildProductView(mw.Lang(r), mw.CSRFToken(r), st, order)
	w.Header().Set("HX-Push-Url", productPath(st.ID)+orderQuery(order))
	a.renderTemplate(w, r, http.StatusOK, "frag_gallery", view.Gallery)
}

// AddToCartHandler adds the product to the signed-in shopper's cart and
// navigates to the cart. Anonymous shoppers get a sign-in notice and the
// cart is left untouched.
func (a *app) AddToCartHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	logger := observability.FromContext(r.Context())
	view := productview.New(a.catalog, productview.WithLogger(logger))
	defer view.Close()

	st := view.Load(r.Context(), id)
	if st.Product == nil {
		a.NotFoundHandler(w, r)
		return
	}

	sess := cart.NewSession(mw.UserFromContext(r.Context()), a.carts)
	navigate := productview.NavigatorFunc(func(route string) {
		mw.Redirect(w, r, route)
	})
	err := view.AddToCart(r.Context(), sess, navigate)
	switch {
	case err == nil:
	case errors.Is(err, productview.ErrAuthRequired):
		a.renderAuthNotice(w, r, "auth.required", productPath(id))
	default:
		logger.Error("add to cart", zap.String("product_id", id), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// renderAuthNotice shows the sign-in notice: a fragment retargeted to
// #notice for htmx, a full 401 page otherwise.
func (a *app) renderAuthNotice(w http.ResponseWriter, r *http.Request, messageKey, returnTo string) {
	lang := mw.Lang(r)
	notice := Notice{
		Lang:       lang,
		MessageKey: messageKey,
		ActionKey:  "auth.login_cta",
		ActionURL:  loginTarget(a.cfg.LoginURL, returnTo),
	}
	if mw.IsHTMX(r.Context()) {
		w.Header().Set("HX-Retarget", "#notice")
		w.Header().Set("HX-Reswap", "innerHTML")
		a.renderTemplate(w, r, http.StatusOK, "frag_notice", notice)
		return
	}
	vm := a.pageData(r, a.bundle.T(lang, "auth.login_title"), nil)
	vm.Notice = notice
	vm.SEO.Robots = "noindex"
	a.renderPage(w, r, http.StatusUnauthorized, "notice", vm)
}

// Notice is a blocking message with an optional call to action.
type Notice struct {
	Lang       string
	MessageKey string
	ActionKey  string
	ActionURL  string
}

// NotFoundHandler renders the shared not-found page.
func (a *app) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	lang := mw.Lang(r)
	if mw.IsHTMX(r.Context()) {
		a.renderTemplate(w, r, http.StatusNotFound, "frag_not_found", map[string]any{"Lang": lang})
		return
	}
	vm := a.pageData(r, a.bundle.T(lang, "product.not_found"), nil)
	vm.SEO.Robots = "noindex"
	vm.Notice = Notice{Lang: lang, MessageKey: "product.not_found", ActionKey: "nav.home", ActionURL: "/"}
	a.renderPage(w, r, http.StatusNotFound, "notice", vm)
}

package main

import (
	"net/http"

	"go.uber.org/zap"

	"finitefield.org/hanko-shop/internal/cart"
	"finitefield.org/hanko-shop/internal/format"
	mw "finitefield.org/hanko-shop/internal/middleware"
	"finitefield.org/hanko-shop/internal/nav"
	"finitefield.org/hanko-shop/internal/observability"
)

// CartView is the view model behind page_cart.
type CartView struct {
	Lang  string
	Lines []CartLineView
	Count int
	Total string
	Empty bool
}

// CartLineView is one rendered cart line.
type CartLineView struct {
	ProductURL string
	Name       string
	Quantity   int
	UnitPrice  string
	Subtotal   string
}

func buildCartView(lang string, c cart.Cart) CartView {
	v := CartView{
		Lang:  lang,
		Count: c.Count(),
		Total: format.Price(c.Total(), lang),
		Empty: len(c.Lines) == 0,
	}
	for _, l := range c.Lines {
		v.Lines = append(v.Lines, CartLineView{
			ProductURL: productPath(l.ProductID),
			Name:       l.Name,
			Quantity:   l.Quantity,
			UnitPrice:  format.Price(l.UnitPrice, lang),
			Subtotal:   format.Price(l.Subtotal(), lang),
		})
	}
	return v
}

// CartHandler renders the signed-in shopper's cart.
func (a *app) CartHandler(w http.ResponseWriter, r *http.Request) {
	lang := mw.Lang(r)
	user := mw.UserFromContext(r.Context())
	if user == nil {
		a.renderAuthNotice(w, r, "cart.login_required", "/cart")
		return
	}
	c, err := a.carts.Get(r.Context(), user.ID)
	if err != nil {
		observability.FromContext(r.Context()).Error("load cart", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	title := a.bundle.T(lang, "cart.title")
	vm := a.pageData(r, title, nav.PageCrumbs("/cart", "nav.cart"))
	vm.SEO.Robots = "noindex"
	vm.Cart = buildCartView(lang, c)
	a.renderPage(w, r, http.StatusOK, "cart", vm)
}

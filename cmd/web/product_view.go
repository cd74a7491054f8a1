package main

import (
	"fmt"
	"html/template"
	"net/url"
	"strconv"

	"finitefield.org/hanko-shop/internal/catalog"
	"finitefield.org/hanko-shop/internal/format"
	"finitefield.org/hanko-shop/internal/gallery"
	"finitefield.org/hanko-shop/internal/productview"
	"finitefield.org/hanko-shop/internal/seo"
)

// offerCurrency is the ISO code behind the "Bs" display suffix.
const offerCurrency = "BOB"

// ProductView is the view model behind page_product and its fragments.
type ProductView struct {
	ID       string
	Lang     string
	Loading  bool
	NotFound bool
	// DetailURL is requested by the loading state in lazy mode.
	DetailURL string

	Name          string
	InStock       bool
	StockLabelKey string
	Price         string
	Description   template.HTML
	Gallery       GalleryView
	Badges        []Badge
	CartAction    string
	CSRFToken     string
}

// GalleryView renders the large image and its thumbnails in display order.
type GalleryView struct {
	ProductID   string
	Lang        string
	Alt         string
	Main        string
	Placeholder bool
	Order       string
	Thumbs      []ThumbView
}

// ThumbView is one thumbnail. Href is the no-script fallback, FragURL the htmx target.
type ThumbView struct {
	Index   int
	URL     string
	Alt     string
	Active  bool
	Href    string
	FragURL string
}

// Badge is a static trust badge shown next to the add-to-cart control.
type Badge struct {
	Icon     string
	LabelKey string
}

var trustBadges = []Badge{
	{Icon: "shield", LabelKey: "badge.secure_payment"},
	{Icon: "award", LabelKey: "badge.warranty"},
}

// buildProductView maps a view state and the requested gallery order onto
// the template model.
func (a *app) buildProductView(lang, csrf string, st productview.State, order gallery.Order) ProductView {
	v := ProductView{
		ID:        st.ID,
		Lang:      lang,
		Loading:   st.Loading,
		NotFound:  st.NotFound(),
		DetailURL: productPath(st.ID) + "/detail",
		CSRFToken: csrf,
	}
	if st.Product == nil {
		return v
	}
	p := st.Product
	v.Name = p.Name
	v.InStock = p.InStock()
	v.StockLabelKey = "product.out_of_stock"
	if v.InStock {
		v.StockLabelKey = "product.in_stock"
	}
	v.Price = format.Price(p.Price, lang)
	v.Description = a.content.Description(p.Description)
	v.Gallery = a.buildGallery(lang, st.ID, p.Name, st.Images, order)
	v.Badges = trustBadges
	v.CartAction = productPath(st.ID) + "/cart"
	return v
}

func (a *app) buildGallery(lang, id, name string, refs gallery.List, order gallery.Order) GalleryView {
	g := GalleryView{ProductID: id, Lang: lang, Alt: name}
	if len(refs) == 0 {
		g.Main = a.cfg.Images.Placeholder
		g.Placeholder = true
		g.Alt = a.bundle.T(lang, "product.no_image")
		return g
	}
	if len(order) != len(refs) {
		order = gallery.Identity(len(refs))
	}
	images := a.images.ResolveAll(order.Apply(refs))
	g.Main = images.Active()
	g.Order = order.String()
	if !images.HasThumbnails() {
		return g
	}
	label := a.bundle.T(lang, "product.image")
	for i, src := range images {
		next, _ := order.RotateToFront(i)
		g.Thumbs = append(g.Thumbs, ThumbView{
			Index:   i,
			URL:     src,
			Alt:     fmt.Sprintf("%s %d", label, i+1),
			Active:  i == 0,
			Href:    productPath(id) + orderQuery(next),
			FragURL: productPath(id) + "/gallery?" + url.Values{"order": {order.String()}, "select": {strconv.Itoa(i)}}.Encode(),
		})
	}
	return g
}

// productJSONLD describes a loaded product for search engines.
func (a *app) productJSONLD(pageURL string, p catalog.Product, images gallery.List) string {
	return seo.JSON(seo.Product(p.Name, p.Description, pageURL, a.images.ResolveAll(images), p.ID, &seo.Offer{
		Price:    p.Price,
		Currency: offerCurrency,
		InStock:  p.InStock(),
		URL:      pageURL,
	}))
}

func productPath(id string) string {
	return "/products/" + url.PathEscape(id)
}

func orderQuery(o gallery.Order) string {
	if o.IsIdentity() {
		return ""
	}
	return "?" + url.Values{"order": {o.String()}}.Encode()
}

package main

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"finitefield.org/hanko-shop/internal/format"
	"finitefield.org/hanko-shop/internal/handlers"
	mw "finitefield.org/hanko-shop/internal/middleware"
	"finitefield.org/hanko-shop/internal/nav"
	"finitefield.org/hanko-shop/internal/observability"
	"finitefield.org/hanko-shop/internal/seo"
)

// templates parses every .tmpl file under dir. In dev mode the set is
// reparsed on each lookup so edits show up without a restart.
type templates struct {
	dir     string
	devMode bool
	funcs   template.FuncMap
	cache   *template.Template
}

func newTemplates(dir string, devMode bool, funcs template.FuncMap) (*templates, error) {
	t := &templates{dir: dir, devMode: devMode, funcs: funcs}
	set, err := t.parse()
	if err != nil {
		return nil, err
	}
	t.cache = set
	return t, nil
}

func (t *templates) parse() (*template.Template, error) {
	// ParseGlob doesn't support **, so walk the tree.
	var files []string
	if err := filepath.WalkDir(t.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".tmpl") {
			files = append(files, path)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no templates found under %s", t.dir)
	}
	return template.New("_root").Funcs(t.funcs).ParseFiles(files...)
}

// set returns an executable copy. The cached set itself is never executed,
// which keeps it cloneable.
func (t *templates) set() (*template.Template, error) {
	if t.devMode {
		return t.parse()
	}
	return t.cache.Clone()
}

// page returns a set whose "content" block renders page_<name>.
func (t *templates) page(name string) (*template.Template, error) {
	set, err := t.set()
	if err != nil {
		return nil, err
	}
	return set.New("content").Parse(`{{template "page_` + name + `" .}}`)
}

func (a *app) funcMap() template.FuncMap {
	return template.FuncMap{
		"t": func(lang, key string) string { return a.bundle.T(lang, key) },
		"price": func(amount decimal.Decimal, lang string) string {
			return format.Price(amount, lang)
		},
		// JSON-LD payloads are produced by seo.JSON from typed values.
		"jsonld": func(s string) template.JS { return template.JS(s) },
	}
}

// renderPage executes the base layout around page_<name>.
func (a *app) renderPage(w http.ResponseWriter, r *http.Request, status int, name string, data handlers.PageData) {
	t, err := a.views.page(name)
	if err != nil {
		a.renderFailure(w, r, err)
		return
	}
	a.execute(w, r, status, t, "base", data)
}

// renderTemplate executes a single named template, typically an htmx fragment.
func (a *app) renderTemplate(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	t, err := a.views.set()
	if err != nil {
		a.renderFailure(w, r, err)
		return
	}
	a.execute(w, r, status, t, name, data)
}

func (a *app) execute(w http.ResponseWriter, r *http.Request, status int, t *template.Template, name string, data any) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		a.renderFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (a *app) renderFailure(w http.ResponseWriter, r *http.Request, err error) {
	observability.FromContext(r.Context()).Error("template render failed", zap.Error(err))
	http.Error(w, "template error", http.StatusInternalServerError)
}

// pageData fills the layout fields shared by every page.
func (a *app) pageData(r *http.Request, title string, crumbs []nav.Crumb) handlers.PageData {
	lang := mw.Lang(r)
	brand := a.bundle.T(lang, "brand.name")
	vm := handlers.PageData{
		Title:       title,
		Lang:        lang,
		Analytics:   handlers.AnalyticsFromConfig(a.cfg.Analytics),
		Path:        r.URL.Path,
		Nav:         nav.Build(r.URL.Path),
		Breadcrumbs: crumbs,
		CSRFToken:   mw.CSRFToken(r),
		User:        mw.UserFromContext(r.Context()),
		LoginURL:    a.loginURL(r),
		DevLogin:    a.devHelpers(),
	}
	vm.SEO.Title = title + " | " + brand
	if title == "" {
		vm.SEO.Title = brand
	}
	vm.SEO.Canonical = absoluteURL(r)
	vm.SEO.OG.URL = vm.SEO.Canonical
	vm.SEO.OG.SiteName = brand
	vm.SEO.OG.Title = vm.SEO.Title
	vm.SEO.OG.Type = "website"
	vm.SEO.Alternates = a.alternates(r)
	return vm
}

// loginURL points at the sign-in page and returns the shopper to the current page.
func (a *app) loginURL(r *http.Request) string {
	if r.URL.Path == a.cfg.LoginURL {
		return a.cfg.LoginURL
	}
	return loginTarget(a.cfg.LoginURL, r.URL.RequestURI())
}

func (a *app) alternates(r *http.Request) []seo.Alternate {
	base := absoluteURL(r)
	out := make([]seo.Alternate, 0, len(a.bundle.Supported()))
	for _, lang := range a.bundle.Supported() {
		out = append(out, seo.Alternate{Href: withQuery(base, "hl", lang), Hreflang: lang})
	}
	return out
}

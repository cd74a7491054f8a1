package main

import (
	"net/http"
	"strings"

	mw "finitefield.org/hanko-shop/internal/middleware"
	"finitefield.org/hanko-shop/internal/nav"
)

// LoginView backs the development sign-in form.
type LoginView struct {
	Next  string
	Error bool
}

// LoginHandler renders the development sign-in form. Only routed outside production.
func (a *app) LoginHandler(w http.ResponseWriter, r *http.Request) {
	lang := mw.Lang(r)
	vm := a.pageData(r, a.bundle.T(lang, "auth.login_title"), nav.PageCrumbs("/login", "nav.login"))
	vm.SEO.Robots = "noindex"
	vm.Login = LoginView{Next: safeNext(r.URL.Query().Get("next"))}
	a.renderPage(w, r, http.StatusOK, "login", vm)
}

// LoginSubmitHandler signs the session in as the submitted user id.
func (a *app) LoginSubmitHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	next := safeNext(r.PostFormValue("next"))
	uid := strings.TrimSpace(r.PostFormValue("uid"))
	if uid == "" {
		lang := mw.Lang(r)
		vm := a.pageData(r, a.bundle.T(lang, "auth.login_title"), nav.PageCrumbs("/login", "nav.login"))
		vm.SEO.Robots = "noindex"
		vm.Login = LoginView{Next: next, Error: true}
		a.renderPage(w, r, http.StatusUnprocessableEntity, "login", vm)
		return
	}
	mw.GetSession(r).SignIn(uid, strings.TrimSpace(r.PostFormValue("email")))
	mw.Redirect(w, r, next)
}

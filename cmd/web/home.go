package main

import (
	"net/http"

	mw "finitefield.org/hanko-shop/internal/middleware"
)

// HomeHandler renders the landing page.
func (a *app) HomeHandler(w http.ResponseWriter, r *http.Request) {
	vm := a.pageData(r, "", nil)
	vm.SEO.Description = a.bundle.T(mw.Lang(r), "home.message")
	a.renderPage(w, r, http.StatusOK, "home", vm)
}

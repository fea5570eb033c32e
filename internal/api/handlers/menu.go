package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/onnwee/menulive/internal/apierr"
	"github.com/onnwee/menulive/internal/logger"
	"github.com/onnwee/menulive/internal/menu"
	"github.com/onnwee/menulive/internal/middleware"
	"github.com/onnwee/menulive/internal/view"
)

const maxCategoryNameLen = 120

// Display is the view controller surface the HTTP handlers drive.
type Display interface {
	Current() view.Fragment
	ShowCategories(ctx context.Context) (view.Fragment, error)
	ShowCategoryProducts(ctx context.Context, categoryID int, name string) (view.Fragment, error)
	SetLanguage(ctx context.Context, lang string) (view.Fragment, error)
	InvalidateAndRefresh(ctx context.Context) (view.Fragment, error)
}

// MenuHandler serves rendered menu fragments.
type MenuHandler struct {
	display Display
}

// NewMenuHandler creates a handler over display.
func NewMenuHandler(display Display) *MenuHandler {
	return &MenuHandler{display: display}
}

// GetCurrent handles GET /menu and returns the fragment on display, rendering
// the category grid when nothing has been shown yet.
func (h *MenuHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	f := h.display.Current()
	if f.View == "" {
		var err error
		f, err = h.display.ShowCategories(r.Context())
		writeFragment(w, r, f, err)
		return
	}
	writeFragment(w, r, f, nil)
}

// GetCategories handles GET /menu/categories.
func (h *MenuHandler) GetCategories(w http.ResponseWriter, r *http.Request) {
	f, err := h.display.ShowCategories(r.Context())
	writeFragment(w, r, f, err)
}

// GetCategoryProducts handles GET /menu/categories/{id}?name=.
func (h *MenuHandler) GetCategoryProducts(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("id", "category id must be a positive integer"))
		return
	}
	name := middleware.SanitizeString(r.URL.Query().Get("name"), maxCategoryNameLen)

	f, err := h.display.ShowCategoryProducts(r.Context(), id, name)
	writeFragment(w, r, f, err)
}

// SetLanguage handles POST /menu/lang/{lang}.
func (h *MenuHandler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	lang := strings.ToLower(mux.Vars(r)["lang"])
	if !supportedLang(lang) {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("lang",
			"unsupported language, expected one of "+strings.Join(menu.SupportedLangs, ", ")))
		return
	}
	f, err := h.display.SetLanguage(r.Context(), lang)
	writeFragment(w, r, f, err)
}

// Refresh handles POST /menu/refresh: drop the cache and re-render the active view.
func (h *MenuHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	logger.InfoContext(r.Context(), "Manual menu refresh requested")
	f, err := h.display.InvalidateAndRefresh(r.Context())
	writeFragment(w, r, f, err)
}

func supportedLang(lang string) bool {
	for _, l := range menu.SupportedLangs {
		if l == lang {
			return true
		}
	}
	return false
}

// writeFragment sends the fragment HTML. Load failures still carry the rendered
// error state, with a status derived from the failure kind.
func writeFragment(w http.ResponseWriter, r *http.Request, f view.Fragment, loadErr error) {
	if f.View == "" {
		if loadErr == nil {
			apierr.WriteErrorWithContext(w, r, apierr.SystemInternal("Nothing to display"))
			return
		}
		apierr.WriteErrorWithContext(w, r, apierr.FromFetchError(loadErr))
		return
	}

	status := http.StatusOK
	if loadErr != nil {
		status = apierr.FromFetchError(loadErr).Status()
	}

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Content-Language", f.Lang)
	h.Set("X-Menu-View", f.View)
	h.Set("X-Menu-Status", f.Status)
	if f.ErrorKind != "" {
		h.Set("X-Menu-Error-Kind", f.ErrorKind)
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(f.HTML))
}

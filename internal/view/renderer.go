// Package view renders cached menu data into HTML fragments and tracks which
// view is on display.
package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/onnwee/menulive/internal/fetch"
	"github.com/onnwee/menulive/internal/menu"
)

const fragmentTemplates = `
{{define "categories"}}<div class="row menu-categories" data-view="{{.ViewKey}}" lang="{{.Lang}}">
{{range .Categories}}  <div class="col-md-6 col-lg-4 mb-4">
    <div class="card shadow h-100 categoria-card" data-category-id="{{.ID}}">
      <div class="card-header bg-primary text-white d-flex justify-content-between align-items-center">
        <h5 class="mb-0">{{.Name}}</h5>
        <span class="badge bg-light text-primary">{{.ProductCount}} {{$.L.ProductsSuffix}}</span>
      </div>
      <div class="card-body d-flex flex-column">
        <p class="card-text text-muted flex-grow-1">{{if .Description}}{{.Description}}{{else}}{{$.L.MainCategory}}{{end}}</p>
        <a class="btn btn-outline-primary w-100 mt-auto" href="{{categoryURL .ID .Name}}">{{$.L.ViewProducts}}</a>
      </div>
    </div>
  </div>
{{end}}</div>{{end}}

{{define "products"}}<div class="menu-products" data-view="{{.ViewKey}}" data-category-id="{{.Category.ID}}" lang="{{.Lang}}">
  <div class="d-flex align-items-center mb-3">
    <a class="btn btn-outline-secondary me-3" href="/menu/categories">{{.L.Back}}</a>
    <h3 class="mb-0">{{.Category.Name}}</h3>
  </div>
{{if .ChildCategories}}  <p class="text-muted small">{{.L.AlsoIn}}: {{join .ChildCategories ", "}}</p>
{{end}}  <div class="row">
{{range .Products}}    <div class="col-md-6 mb-3" data-product-id="{{.ID}}">
      <div class="card h-100 shadow-sm prodotto-card">
{{if .Photo}}        <img src="/static/{{.Photo}}" class="card-img-top" alt="{{.Name}}" loading="lazy">
{{end}}        <div class="card-body">
          <h4 class="card-title fw-bold mb-3">{{.Name}}</h4>
{{if .Description}}          <p class="card-text small text-muted mb-3">{{.Description}}</p>
{{end}}{{if .Ingredients}}          <div class="mb-2"><small class="text-muted"><strong>{{$.L.Ingredients}}:</strong> {{join .Ingredients ", "}}</small></div>
{{end}}{{if .Allergens}}          <div class="mb-2 allergens"><small class="text-muted"><strong>{{$.L.Allergens}}:</strong></small>
{{range .Allergens}}            <span class="allergen text-muted">{{icon .Icon}} {{.Name}}</span>
{{end}}          </div>
{{end}}          <h5 class="text-success mb-0 price">{{price .Price}}</h5>
        </div>
      </div>
    </div>
{{else}}    <p class="text-muted text-center py-4">{{.L.NoProducts}}</p>
{{end}}  </div>
</div>{{end}}

{{define "error"}}<div class="text-center py-5 menu-error" data-view="{{.ViewKey}}" data-error-kind="{{.Kind}}">
  <h4 class="text-muted">{{.L.LoadError}}</h4>
  <p class="text-muted mb-4">{{.Message}}</p>
  <div class="d-flex justify-content-center gap-2">
    <a class="btn btn-primary me-2" href="{{.RetryURL}}" data-action="retry">{{.L.Retry}}</a>
{{if .BackURL}}    <a class="btn btn-outline-secondary" href="{{.BackURL}}" data-action="back">{{.L.Back}}</a>
{{end}}  </div>
</div>{{end}}
`

// Renderer turns menu data into HTML fragments.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the fragment templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.New("fragments").Funcs(template.FuncMap{
		"price":       formatPrice,
		"join":        strings.Join,
		"categoryURL": categoryURL,
		"icon":        allergenIcon,
	}).Parse(fragmentTemplates)
	if err != nil {
		return nil, fmt.Errorf("parse fragment templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

func formatPrice(p decimal.Decimal) string { return "€" + p.StringFixed(2) }

// allergenIcon falls back to a warning sign when the allergen has no icon.
func allergenIcon(icon string) string {
	if icon == "" {
		return "⚠️"
	}
	return icon
}

func categoryURL(id int, name string) string {
	return "/menu/categories/" + strconv.Itoa(id) + "?name=" + url.QueryEscape(name)
}

type categoriesData struct {
	ViewKey    string
	Lang       string
	L          labels
	Categories []menu.CategorySummary
}

type productsData struct {
	ViewKey         string
	Lang            string
	L               labels
	Category        menu.CategorySummary
	ChildCategories []string
	Products        []menu.Product
}

type errorData struct {
	ViewKey  string
	L        labels
	Kind     string
	Message  string
	RetryURL string
	BackURL  string
}

// Categories renders the category grid.
func (r *Renderer) Categories(v View, cats []menu.CategorySummary) ([]byte, error) {
	return r.execute("categories", categoriesData{
		ViewKey:    v.Key(),
		Lang:       v.Lang,
		L:          labelsFor(v.Lang),
		Categories: cats,
	})
}

// Products renders a category's product list. Unavailable products are left out.
func (r *Renderer) Products(v View, b menu.CategoryProductsBundle) ([]byte, error) {
	cat := b.Category
	if cat.Name == "" {
		cat.Name = v.CategoryName
	}
	if cat.ID == 0 {
		cat.ID = v.CategoryID
	}
	products := make([]menu.Product, 0, len(b.Products))
	for _, p := range b.Products {
		if p.Available {
			products = append(products, p)
		}
	}
	return r.execute("products", productsData{
		ViewKey:         v.Key(),
		Lang:            v.Lang,
		L:               labelsFor(v.Lang),
		Category:        cat,
		ChildCategories: b.ChildCategories,
		Products:        products,
	})
}

// Error renders the inline error state of v. Product views get a Back action.
func (r *Renderer) Error(v View, err error) ([]byte, error) {
	kind := fetch.KindOf(err)
	l := labelsFor(v.Lang)
	data := errorData{
		ViewKey:  v.Key(),
		L:        l,
		Kind:     kind.String(),
		Message:  l.errorMessage(kind),
		RetryURL: v.URL(),
	}
	if v.Kind == KindCategory {
		data.BackURL = "/menu/categories"
	}
	return r.execute("error", data)
}

func (r *Renderer) execute(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

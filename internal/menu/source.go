package menu

import (
	"context"

	"github.com/onnwee/menulive/internal/fetch"
)

// Source loads menu data from the system of record.
type Source interface {
	Categories(ctx context.Context, lang string) ([]CategorySummary, error)
	CategoryProducts(ctx context.Context, categoryID int, lang string) (CategoryProductsBundle, error)
}

// APISource reads the menu from the REST API.
type APISource struct {
	Client *fetch.Client
}

func (s APISource) Categories(ctx context.Context, lang string) ([]CategorySummary, error) {
	return fetch.FetchJSON[[]CategorySummary](ctx, s.Client, fetch.CategoriesPath(lang), 0)
}

func (s APISource) CategoryProducts(ctx context.Context, categoryID int, lang string) (CategoryProductsBundle, error) {
	return fetch.FetchJSON[CategoryProductsBundle](ctx, s.Client, fetch.CategoryProductsPath(categoryID, lang), 0)
}

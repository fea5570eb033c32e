// Package menu holds the menu data model and the Store that serves it from
// language-namespaced TTL caches.
package menu

import "github.com/shopspring/decimal"

// CategorySummary is one entry of the category grid.
type CategorySummary struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	ProductCount int    `json:"productCount"`
}

// Allergen is shown as an icon next to a product.
type Allergen struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// Product is a menu item.
type Product struct {
	ID           int             `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Available    bool            `json:"available"`
	Photo        string          `json:"photo,omitempty"`
	CategoryID   int             `json:"categoryId"`
	CategoryName string          `json:"categoryName,omitempty"`
	Ingredients  []string        `json:"ingredients"`
	Allergens    []Allergen      `json:"allergens"`
}

// CategoryProductsBundle is the product listing of one category, products of
// its child categories included.
type CategoryProductsBundle struct {
	Category        CategorySummary `json:"category"`
	ChildCategories []string        `json:"childCategories"`
	Products        []Product       `json:"products"`
	TotalProducts   int             `json:"totalProducts"`
}

// Contains reports whether the bundle lists productID.
func (b CategoryProductsBundle) Contains(productID int) bool {
	for _, p := range b.Products {
		if p.ID == productID {
			return true
		}
	}
	return false
}

// Without returns a copy of b with productID removed and the total decremented.
// The second result is false when the product was not listed.
func (b CategoryProductsBundle) Without(productID int) (CategoryProductsBundle, bool) {
	if !b.Contains(productID) {
		return b, false
	}
	products := make([]Product, 0, len(b.Products)-1)
	for _, p := range b.Products {
		if p.ID != productID {
			products = append(products, p)
		}
	}
	b.Products = products
	if b.TotalProducts > 0 {
		b.TotalProducts--
	}
	return b, true
}

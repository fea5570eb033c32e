package view

import (
	"fmt"
	"time"
)

// Kind tells which screen a View shows.
type Kind int

const (
	KindCategories Kind = iota
	KindCategory
)

func (k Kind) String() string {
	if k == KindCategory {
		return "category"
	}
	return "categories"
}

// View identifies one screen in one language.
type View struct {
	Kind         Kind
	Lang         string
	CategoryID   int
	CategoryName string
}

// Key identifies the view for re-render coalescing: "categories:{lang}" or
// "category:{id}:{lang}".
func (v View) Key() string {
	if v.Kind == KindCategory {
		return fmt.Sprintf("category:%d:%s", v.CategoryID, v.Lang)
	}
	return "categories:" + v.Lang
}

// URL is where the display fetches the view again.
func (v View) URL() string {
	if v.Kind == KindCategory {
		return categoryURL(v.CategoryID, v.CategoryName)
	}
	return "/menu/categories"
}

// Fragment is one rendered view.
type Fragment struct {
	View       string    `json:"view"`
	Lang       string    `json:"lang"`
	Status     string    `json:"status"` // ok or error
	ErrorKind  string    `json:"errorKind,omitempty"`
	HTML       string    `json:"html"`
	RenderedAt time.Time `json:"renderedAt"`
}


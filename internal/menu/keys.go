package menu

import (
	"strconv"
	"strings"
)

// DefaultLang is used when no supported language is requested.
const DefaultLang = "it"

// SupportedLangs are the language tags the menu API translates into.
var SupportedLangs = []string{"it", "en"}

// NormalizeLang returns lang when supported and DefaultLang otherwise.
func NormalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	for _, l := range SupportedLangs {
		if l == lang {
			return l
		}
	}
	return DefaultLang
}

const categoriesPrefix = "cat_"

// CategoriesKey is the cache key of the category list in lang.
func CategoriesKey(lang string) string { return categoriesPrefix + lang }

// BundleKey is the cache key of a category's products in lang.
func BundleKey(categoryID int, lang string) string {
	return strconv.Itoa(categoryID) + "_" + lang
}

// bundlePrefix matches every language of one category.
func bundlePrefix(categoryID int) string { return strconv.Itoa(categoryID) + "_" }

// ParseBundleKey splits a bundle key into category id and language.
func ParseBundleKey(key string) (int, string, bool) {
	idStr, lang, ok := strings.Cut(key, "_")
	if !ok || lang == "" {
		return 0, "", false
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return 0, "", false
	}
	return id, lang, true
}

package menu

// Change describes what an invalidation touched, so the view layer can decide
// whether the displayed view needs a re-render.
type Change struct {
	All         bool  // every entry was dropped
	Categories  bool  // category lists were dropped
	CategoryIDs []int // categories whose bundles were dropped or patched
}

// Empty reports whether nothing was touched.
func (c Change) Empty() bool {
	return !c.All && !c.Categories && len(c.CategoryIDs) == 0
}

// TouchesCategories reports whether the category grid is affected.
func (c Change) TouchesCategories() bool { return c.All || c.Categories }

// TouchesCategory reports whether the product view of id is affected.
func (c Change) TouchesCategory(id int) bool {
	if c.All {
		return true
	}
	for _, cid := range c.CategoryIDs {
		if cid == id {
			return true
		}
	}
	return false
}

func (c *Change) addCategory(id int) {
	if c.TouchesCategory(id) {
		return
	}
	c.CategoryIDs = append(c.CategoryIDs, id)
}

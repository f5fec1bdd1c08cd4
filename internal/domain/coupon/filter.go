package coupon

// Matches reports whether a line item is eligible for the coupon's discount.
// A coupon with no applicability sets covers the whole cart; otherwise an
// item matches when its product, category, or brand appears in the
// corresponding set (OR semantics).
func Matches(item LineItem, c *Coupon) bool {
	if len(c.ProductIDs) == 0 && len(c.CategoryIDs) == 0 && len(c.BrandIDs) == 0 {
		return true
	}
	return contains(c.ProductIDs, item.ProductID) ||
		contains(c.CategoryIDs, item.CategoryID) ||
		contains(c.BrandIDs, item.BrandID)
}

func contains(set []string, id string) bool {
	if id == "" {
		return false
	}
	for _, s := range set {
		if s == id {
			return true
		}
	}
	return false
}

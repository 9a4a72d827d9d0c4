package scope

// AllowsTag reports whether a membership scope permits a single tag.
// A categorized scope permits the tag when any category lists it.
func AllowsTag(membership Scope, tag string) bool {
	switch membership.kind {
	case KindList:
		return contains(membership.tags, tag)
	case KindCategorized:
		for _, tags := range membership.categories {
			if contains(tags, tag) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// AllowsCategoryTag reports whether a membership scope permits tag within
// category. A list scope ignores the category.
func AllowsCategoryTag(membership Scope, category, tag string) bool {
	switch membership.kind {
	case KindList:
		return contains(membership.tags, tag)
	case KindCategorized:
		tags, ok := membership.categories[category]
		if !ok {
			return false
		}
		return contains(tags, tag)
	default:
		return true
	}
}

// Allows reports whether every tag in requested is permitted by membership.
// An unrestricted membership allows everything; an unrestricted request asks
// for no specific check and is always allowed.
func Allows(membership, requested Scope) bool {
	if membership.kind == KindNone || requested.kind == KindNone {
		return true
	}

	switch requested.kind {
	case KindList:
		for _, tag := range requested.tags {
			if !AllowsTag(membership, tag) {
				return false
			}
		}
	case KindCategorized:
		for category, tags := range requested.categories {
			for _, tag := range tags {
				if !AllowsCategoryTag(membership, category, tag) {
					return false
				}
			}
		}
	}
	return true
}

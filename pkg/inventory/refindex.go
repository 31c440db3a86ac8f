package inventory

import "strconv"

// RefIndex maps short 1-based reference numbers to item identifiers for one
// enumeration of the ledger. It is request-scoped: the ledger may change
// between reads, so callers rebuild rather than cache it.
type RefIndex struct {
	refs  map[string]ItemID
	order []string
}

// BuildRefIndex numbers the given view starting at 1, in view order.
func BuildRefIndex(view []ListedItem) RefIndex {
	index := RefIndex{
		refs:  make(map[string]ItemID, len(view)),
		order: make([]string, 0, len(view)),
	}
	for position, listed := range view {
		ref := strconv.Itoa(position + 1)
		index.refs[ref] = listed.ID
		index.order = append(index.order, ref)
	}
	return index
}

// Resolve looks up the item id behind a reference string. The ref is not
// re-validated against a later ledger state; callers rebuild the index first
// when the ledger could have moved.
func (index RefIndex) Resolve(ref string) (ItemID, error) {
	id, exists := index.refs[ref]
	if !exists {
		return ItemID{}, ErrUnknownRef
	}
	return id, nil
}

// Refs returns every reference string in numbering order.
func (index RefIndex) Refs() []string {
	return append([]string(nil), index.order...)
}

// Len returns the number of references.
func (index RefIndex) Len() int {
	return len(index.refs)
}

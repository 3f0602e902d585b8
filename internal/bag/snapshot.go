package bag

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/designdock/designdock-backend/pkg/db/models"
)

// Snapshot is the session bag: product id -> license variant -> quantity.
// It is a value type; Add/Adjust/Remove return new snapshots and never
// mutate the receiver. Persistence belongs to SessionStore.
type Snapshot map[string]map[string]int

// UnmarshalJSON accepts both the current form {id: {license: qty}} and the
// legacy variant-less form {id: qty}, which normalizes to the personal
// license.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Snapshot, len(raw))
	for productID, value := range raw {
		var qty int
		if err := json.Unmarshal(value, &qty); err == nil {
			if qty > 0 {
				out[productID] = map[string]int{models.LicensePersonal: qty}
			}
			continue
		}

		var variants map[string]int
		if err := json.Unmarshal(value, &variants); err != nil {
			return fmt.Errorf("bag entry %q: expected quantity or variant map", productID)
		}
		clean := make(map[string]int, len(variants))
		for license, q := range variants {
			if q > 0 {
				clean[license] = q
			}
		}
		if len(clean) > 0 {
			out[productID] = clean
		}
	}

	*s = out
	return nil
}

// Add returns a new snapshot with qty added to the product/license pairing.
func (s Snapshot) Add(productID, license string, qty int) Snapshot {
	if qty <= 0 {
		return s.clone()
	}
	if license == "" {
		license = models.LicensePersonal
	}
	out := s.clone()
	if out[productID] == nil {
		out[productID] = map[string]int{}
	}
	out[productID][license] += qty
	return out
}

// Adjust returns a new snapshot with the product/license quantity replaced.
// A non-positive quantity removes the variant; empty variant maps prune the
// product entirely.
func (s Snapshot) Adjust(productID, license string, qty int) Snapshot {
	if license == "" {
		license = models.LicensePersonal
	}
	out := s.clone()
	variants, ok := out[productID]
	if !ok {
		if qty > 0 {
			out[productID] = map[string]int{license: qty}
		}
		return out
	}
	if qty > 0 {
		variants[license] = qty
	} else {
		delete(variants, license)
	}
	if len(variants) == 0 {
		delete(out, productID)
	}
	return out
}

// Remove returns a new snapshot without the product, across all variants.
func (s Snapshot) Remove(productID string) Snapshot {
	out := s.clone()
	delete(out, productID)
	return out
}

// IsEmpty reports whether the bag holds no items.
func (s Snapshot) IsEmpty() bool {
	return len(s) == 0
}

// TotalItems sums quantities across all products and variants.
func (s Snapshot) TotalItems() int {
	total := 0
	for _, variants := range s {
		for _, qty := range variants {
			total += qty
		}
	}
	return total
}

// ProductIDs returns the product ids in the bag, sorted for stable iteration.
func (s Snapshot) ProductIDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s Snapshot) clone() Snapshot {
	out := make(Snapshot, len(s))
	for productID, variants := range s {
		copied := make(map[string]int, len(variants))
		for license, qty := range variants {
			copied[license] = qty
		}
		out[productID] = copied
	}
	return out
}

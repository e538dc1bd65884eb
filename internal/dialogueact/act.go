package dialogueact

import (
	"sort"
	"strings"
)

// DialogueAct is an ordered multiset of items.
type DialogueAct []Item

// Parse reads the dat1(slot=val)&dat2(slot2=val2) form. The empty string
// yields an empty act.
func Parse(s string) (DialogueAct, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DialogueAct{}, nil
	}
	parts := splitOutside(s, '&')
	da := make(DialogueAct, 0, len(parts))
	for _, p := range parts {
		it, err := ParseItem(p)
		if err != nil {
			return nil, err
		}
		da = append(da, it)
	}
	return da, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) DialogueAct {
	da, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return da
}

// Of builds an act from items.
func Of(items ...Item) DialogueAct {
	return append(DialogueAct{}, items...)
}

func (da DialogueAct) String() string {
	parts := make([]string, len(da))
	for i, it := range da {
		parts[i] = it.String()
	}
	return strings.Join(parts, "&")
}

// Add appends a single item built from its parts.
func (da *DialogueAct) Add(dat, name, value string) {
	*da = append(*da, Item{DAT: dat, Name: name, Value: value})
}

// Extend appends all items of other.
func (da *DialogueAct) Extend(other DialogueAct) {
	*da = append(*da, other...)
}

// Merge appends the items of other that are not already present.
func (da *DialogueAct) Merge(other DialogueAct) {
	for _, it := range other {
		if !da.Has(it) {
			*da = append(*da, it)
		}
	}
}

// Has reports whether the exact item is present.
func (da DialogueAct) Has(it Item) bool {
	for _, x := range da {
		if x == it {
			return true
		}
	}
	return false
}

// HasDAT reports whether any item has the given act type.
func (da DialogueAct) HasDAT(dat string) bool {
	for _, x := range da {
		if x.DAT == dat {
			return true
		}
	}
	return false
}

// HasOnlyDAT reports whether the act is non-empty and every item has the given type.
func (da DialogueAct) HasOnlyDAT(dat string) bool {
	if len(da) == 0 {
		return false
	}
	for _, x := range da {
		if x.DAT != dat {
			return false
		}
	}
	return true
}

// Sort returns a copy sorted by (dat, name, value) with exact duplicates removed.
// The result is the canonical form used for comparison.
func (da DialogueAct) Sort() DialogueAct {
	out := append(DialogueAct{}, da...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Less(out[j]) })
	n := 0
	for i, it := range out {
		if i > 0 && it == out[n-1] {
			continue
		}
		out[n] = it
		n++
	}
	return out[:n]
}

// Normalize maps an empty act to null().
func (da DialogueAct) Normalize() DialogueAct {
	if len(da) == 0 {
		return DialogueAct{{DAT: "null"}}
	}
	return da
}

// Equal compares two acts item by item.
func (da DialogueAct) Equal(o DialogueAct) bool {
	if len(da) != len(o) {
		return false
	}
	for i := range da {
		if da[i] != o[i] {
			return false
		}
	}
	return true
}

// Key is the canonical string of the sorted act, used for duplicate detection.
func (da DialogueAct) Key() string {
	return da.Sort().String()
}

package pagerange

import (
	"strconv"
	"strings"
)

// Selection is the set of selected 0-based page indices for a document of a
// known page count. Tile toggles and typed range text both edit the same
// Selection, and the range text shown back to the user is rendered from it.
// The zero value is an empty selection over zero pages.
type Selection struct {
	n   int
	on  []bool
	len int
}

// NewSelection returns an empty selection over n pages.
func NewSelection(n int) Selection {
	if n < 0 {
		n = 0
	}
	return Selection{n: n, on: make([]bool, n)}
}

// All returns a selection with every one of n pages selected.
func All(n int) Selection {
	s := NewSelection(n)
	for i := range s.on {
		s.on[i] = true
	}
	s.len = s.n
	return s
}

// FromIndices selects the given 0-based indices, dropping any outside [0, n).
func FromIndices(n int, indices []int) Selection {
	s := NewSelection(n)
	for _, i := range indices {
		s.Set(i, true)
	}
	return s
}

// Count is the page count the selection was built for.
func (s Selection) Count() int { return s.n }

// Len is the number of selected pages.
func (s Selection) Len() int { return s.len }

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool { return s.len == 0 }

// Has reports whether index i is selected.
func (s Selection) Has(i int) bool {
	return i >= 0 && i < s.n && s.on[i]
}

// Set selects or deselects index i. Out-of-range indices are ignored.
func (s *Selection) Set(i int, selected bool) {
	if i < 0 || i >= s.n || s.on[i] == selected {
		return
	}
	s.on[i] = selected
	if selected {
		s.len++
	} else {
		s.len--
	}
}

// Toggle flips index i and returns its new state.
func (s *Selection) Toggle(i int) bool {
	if i < 0 || i >= s.n {
		return false
	}
	s.Set(i, !s.on[i])
	return s.on[i]
}

// Indices returns the selected indices in ascending order.
func (s Selection) Indices() []int {
	out := make([]int, 0, s.len)
	for i, on := range s.on {
		if on {
			out = append(out, i)
		}
	}
	return out
}

// Clone returns an independent copy.
func (s Selection) Clone() Selection {
	c := Selection{n: s.n, on: make([]bool, s.n), len: s.len}
	copy(c.on, s.on)
	return c
}

// String renders the canonical 1-based range expression, e.g. {0,2,3,4} as
// "1,3-5". Parse(s.String(), s.Count()) yields the same selection.
func (s Selection) String() string {
	var b strings.Builder
	i := 0
	for i < s.n {
		if !s.on[i] {
			i++
			continue
		}
		j := i
		for j+1 < s.n && s.on[j+1] {
			j++
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(i + 1))
		if j > i {
			b.WriteByte('-')
			b.WriteString(strconv.Itoa(j + 1))
		}
		i = j + 1
	}
	return b.String()
}

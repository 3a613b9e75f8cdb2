package pagerange_test

import (
	"testing"

	"github.com/local/pdftools/internal/pagerange"
	"github.com/m-mizutani/gt"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		expr string
		n    int
		want []int
	}{
		{name: "single page", expr: "3", n: 5, want: []int{2}},
		{name: "list and range", expr: "1, 3-5", n: 10, want: []int{0, 2, 3, 4}},
		{name: "reversed range", expr: "5-3", n: 10, want: []int{2, 3, 4}},
		{name: "range clamped to page count", expr: "1-100", n: 5, want: []int{0, 1, 2, 3, 4}},
		{name: "huge range stays bounded", expr: "1-1000000000", n: 3, want: []int{0, 1, 2}},
		{name: "zero is below the 1-based bound", expr: "0", n: 5, want: []int{}},
		{name: "past the last page", expr: "6", n: 5, want: []int{}},
		{name: "empty expression", expr: "", n: 5, want: []int{}},
		{name: "only commas and spaces", expr: " , ,, ", n: 5, want: []int{}},
		{name: "malformed tokens dropped", expr: "abc, 2, x-4, 4-y", n: 5, want: []int{1}},
		{name: "leading hyphen is not a negative number", expr: "-3", n: 5, want: []int{}},
		{name: "double hyphen rejected", expr: "1-2-3", n: 5, want: []int{}},
		{name: "overlaps collapse", expr: "1-3, 2-4, 3", n: 5, want: []int{0, 1, 2, 3}},
		{name: "output is ascending regardless of input order", expr: "10, 5, 1", n: 10, want: []int{0, 4, 9}},
		{name: "whitespace around range endpoints", expr: " 2 - 3 ", n: 5, want: []int{1, 2}},
		{name: "range partly out of bounds", expr: "4-9", n: 5, want: []int{3, 4}},
		{name: "zero pages", expr: "1-3", n: 0, want: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := pagerange.Parse(tt.expr, tt.n)
			gt.V(t, sel.Indices()).Equal(tt.want)
			gt.Equal(t, sel.Empty(), len(tt.want) == 0)
			for _, i := range sel.Indices() {
				gt.True(t, i >= 0 && i < tt.n)
			}
		})
	}
}

func TestParseIsDeterministic(t *testing.T) {
	a := pagerange.Parse("7, 1-3, 5", 8)
	b := pagerange.Parse("7, 1-3, 5", 8)
	gt.V(t, a.Indices()).Equal(b.Indices())
}

func TestParseDetailedReportsIgnoredTokens(t *testing.T) {
	sel, ignored := pagerange.ParseDetailed("1, abc, 9, 2-x, , 3", 5)
	gt.V(t, sel.Indices()).Equal([]int{0, 2})
	gt.V(t, ignored).Equal([]string{"abc", "9", "2-x"})
}

func TestNormalize(t *testing.T) {
	gt.Equal(t, pagerange.Normalize(" 2, 4 "), "2,4")
	gt.Equal(t, pagerange.Normalize("1 - 3,\t5"), "1-3,5")
	gt.Equal(t, pagerange.Normalize(""), "")
}

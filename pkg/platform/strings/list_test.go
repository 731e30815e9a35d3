package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: nil},
		{name: "blank", in: "  ", want: nil},
		{name: "single broker", in: "localhost:9092", want: []string{"localhost:9092"}},
		{name: "trims and drops empties", in: " a:9092, ,b:9092 ,", want: []string{"a:9092", "b:9092"}},
		{name: "repeats keep first position", in: "b,a,b,c,a", want: []string{"b", "a", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitList(tt.in, ","))
		})
	}
}

func TestDedupeAndTrim(t *testing.T) {
	assert.Nil(t, DedupeAndTrim(nil))
	assert.Equal(t, []string{}, DedupeAndTrim([]string{}))
	assert.Equal(t, []string{"x", "y"}, DedupeAndTrim([]string{" x", "y ", "x", ""}))
}

package slug

import "testing"

func TestMake(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "simple", in: "a red fox in snow", max: 40, want: "a-red-fox-in-snow"},
		{name: "punctuation collapsed", in: "hello,   world!!!", max: 40, want: "hello-world"},
		{name: "diacritics stripped", in: "Crème Brûlée", max: 40, want: "creme-brulee"},
		{name: "truncated at boundary", in: "a red fox in snow", max: 6, want: "a-red"},
		{name: "no trailing hyphen", in: "fox ", max: 40, want: "fox"},
		{name: "only symbols", in: "!!! ???", max: 40, want: "untitled"},
		{name: "empty", in: "", max: 40, want: "untitled"},
		{name: "cjk removed", in: "狐 fox", max: 40, want: "fox"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Make(tc.in, tc.max); got != tc.want {
				t.Fatalf("Make(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
			}
		})
	}
}

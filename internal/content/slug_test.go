package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello-world"},
		{"  Leading & trailing!  ", "leading-trailing"},
		{"Crème Brûlée Recipe", "creme-brulee-recipe"},
		{"Go 1.24 Release Notes", "go-1-24-release-notes"},
		{"--already--slugged--", "already-slugged"},
		{"!!!", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Slugify(tc.in), tc.in)
	}
}

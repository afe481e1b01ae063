package semver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantOK  bool
		want    Version
	}{
		{"plain triple", "1.2.3", true, Version{1, 2, 3}},
		{"v prefix", "v1.2.3", true, Version{1, 2, 3}},
		{"zero baseline", "0.0.0", true, Version{0, 0, 0}},
		{"missing component", "1.2", false, Version{}},
		{"extra component", "1.2.3.4", false, Version{}},
		{"non-numeric", "1.x.3", false, Version{}},
		{"empty", "", false, Version{}},
		{"garbage", "not-a-version", false, Version{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	assert.Equal(t, 0, MustParse("1.0.0").Compare(MustParse("1.0.0")))
	assert.Equal(t, -1, MustParse("1.0.0").Compare(MustParse("1.1.0")))
	assert.Equal(t, 1, MustParse("1.1.0").Compare(MustParse("1.0.9")))
	assert.True(t, MustParse("1.1.0").GreaterThan(MustParse("1.0.99")))
	assert.False(t, MustParse("1.0.0").GreaterThan(MustParse("1.0.0")))
}

func TestString(t *testing.T) {
	assert.Equal(t, "1.2.3", MustParse("v1.2.3").String())
}

package version

import (
	"testing"

	"github.com/cuemby/otaagent/pkg/semver"
	"github.com/stretchr/testify/assert"
)

func TestSetAndGet(t *testing.T) {
	tr := New()
	tr.Set("sg", semver.MustParse("1.0.0"))

	v, ok := tr.Get("sg")
	assert.True(t, ok)
	assert.Equal(t, semver.MustParse("1.0.0"), v)
}

func TestGetUntrackedReturnsBaseline(t *testing.T) {
	tr := New()
	v, ok := tr.Get("unknown")
	assert.False(t, ok)
	assert.Equal(t, semver.Baseline, v)
}

func TestRemove(t *testing.T) {
	tr := New()
	tr.Set("sg", semver.MustParse("1.0.0"))
	tr.Remove("sg")

	_, ok := tr.Get("sg")
	assert.False(t, ok)
}

func TestSnapshotIsACopy(t *testing.T) {
	tr := New()
	tr.Set("sg", semver.MustParse("1.0.0"))

	snap := tr.Snapshot()
	snap["sg"] = semver.MustParse("9.9.9")

	v, _ := tr.Get("sg")
	assert.Equal(t, semver.MustParse("1.0.0"), v)
}

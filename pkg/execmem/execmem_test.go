package execmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateAndFree(t *testing.T) {
	code := make([]byte, 64)
	for i := range code {
		code[i] = byte(i)
	}

	region, err := Allocate(code)
	require.NoError(t, err)
	assert.Equal(t, len(code), region.Size())
	assert.NotZero(t, region.EntryPoint())

	require.NoError(t, region.Free())
}

func TestAllocateEmptyArtifact(t *testing.T) {
	_, err := Allocate(nil)
	assert.Error(t, err)
}

func TestFreeIsIdempotentOnZeroRegion(t *testing.T) {
	region, err := Allocate([]byte{0x90})
	require.NoError(t, err)
	require.NoError(t, region.Free())
	// Second Free on an already-freed region must not panic or re-munmap.
	require.NoError(t, region.Free())
}

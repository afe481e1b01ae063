package staging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenStagingBusy(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.OpenStaging("sg"))
	err := s.OpenStaging("sg")
	assert.ErrorIs(t, err, ErrBusy)
}

func TestCommitPublishesAndBacksUpPrior(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.OpenStaging("sg"))
	require.NoError(t, s.WriteStaging("sg", []byte("v1")))
	require.NoError(t, s.FinalizeStaging("sg"))
	require.NoError(t, s.Commit("sg"))

	data, err := s.Read("sg", "active")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
	assert.False(t, s.HasSlot("sg", "backup"))

	require.NoError(t, s.OpenStaging("sg"))
	require.NoError(t, s.WriteStaging("sg", []byte("v2")))
	require.NoError(t, s.FinalizeStaging("sg"))
	require.NoError(t, s.Commit("sg"))

	data, err = s.Read("sg", "active")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	backup, err := s.Read("sg", "backup")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(backup))
}

func TestRollbackRestoresBackup(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.OpenStaging("sg"))
	require.NoError(t, s.WriteStaging("sg", []byte("v1")))
	require.NoError(t, s.FinalizeStaging("sg"))
	require.NoError(t, s.Commit("sg"))

	require.NoError(t, s.OpenStaging("sg"))
	require.NoError(t, s.WriteStaging("sg", []byte("v2-bad")))
	require.NoError(t, s.FinalizeStaging("sg"))
	require.NoError(t, s.Commit("sg"))

	require.NoError(t, s.Rollback("sg"))

	data, err := s.Read("sg", "active")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestFinalizeSuccessDeletesBackup(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.OpenStaging("sg"))
	require.NoError(t, s.WriteStaging("sg", []byte("v1")))
	require.NoError(t, s.FinalizeStaging("sg"))
	require.NoError(t, s.Commit("sg"))
	require.NoError(t, s.OpenStaging("sg"))
	require.NoError(t, s.WriteStaging("sg", []byte("v2")))
	require.NoError(t, s.FinalizeStaging("sg"))
	require.NoError(t, s.Commit("sg"))

	require.NoError(t, s.FinalizeSuccess("sg"))
	assert.False(t, s.HasSlot("sg", "backup"))
}

func TestDiscardStaging(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.OpenStaging("sg"))
	require.NoError(t, s.WriteStaging("sg", []byte("partial")))
	require.NoError(t, s.DiscardStaging("sg"))

	assert.False(t, s.HasSlot("sg", "staging"))
	// A fresh OpenStaging must succeed after discard.
	assert.NoError(t, s.OpenStaging("sg"))
}

func TestRecoverDiscardsUncommittedStaging(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	require.NoError(t, s.OpenStaging("sg"))
	require.NoError(t, s.WriteStaging("sg", []byte("half-written")))
	require.NoError(t, s.FinalizeStaging("sg"))
	// Simulate a crash before Commit ever runs: staging exists, no
	// commit record was written.
	require.NoError(t, s.Close())

	s2, err := Open(root)
	require.NoError(t, err)
	defer s2.Close()

	results, err := s2.Recover()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "staging_discarded", results[0].Resolution)
	assert.False(t, s2.HasSlot("sg", "staging"))
}

func TestRecoverCompletesInterruptedCommit(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)

	require.NoError(t, s.OpenStaging("sg"))
	require.NoError(t, s.WriteStaging("sg", []byte("v1")))
	require.NoError(t, s.FinalizeStaging("sg"))

	// Simulate a crash mid-commit: journal marked started, but the
	// staging->active rename never ran.
	require.NoError(t, s.markCommitStarted("sg"))
	require.NoError(t, s.Close())

	s2, err := Open(root)
	require.NoError(t, err)
	defer s2.Close()

	results, err := s2.Recover()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "commit_completed", results[0].Resolution)

	data, err := s2.Read("sg", "active")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(data))
}

func TestRecoverNoModules(t *testing.T) {
	s := openTestStore(t)
	results, err := s.Recover()
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSlotPathLayout(t *testing.T) {
	root := t.TempDir()
	s, err := Open(root)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.OpenStaging("sg"))
	require.NoError(t, s.WriteStaging("sg", []byte("x")))

	_, err = os.Stat(filepath.Join(root, "modules", "sg", "staging.bin"))
	assert.NoError(t, err)
}

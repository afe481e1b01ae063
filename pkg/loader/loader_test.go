package loader

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHost struct {
	persisted map[string]string
}

func newFakeHost() *fakeHost {
	return &fakeHost{persisted: make(map[string]string)}
}

func (h *fakeHost) Log(level int32, msg string)   {}
func (h *fakeHost) Now() int64                    { return 1234 }
func (h *fakeHost) ReadSensor(channel int32) int32 { return 0 }
func (h *fakeHost) PersistGet(key string) (string, bool) {
	v, ok := h.persisted[key]
	return v, ok
}
func (h *fakeHost) PersistSet(key, value string) bool {
	h.persisted[key] = value
	return true
}
func (h *fakeHost) QueryModule(name string) int32 { return 0 }

func TestLoadAlreadyLoaded(t *testing.T) {
	l := New(8, newFakeHost())
	l.modules["sg"] = &LoadedModule{Name: "sg"}

	_, err := l.Load("sg", []byte{0x01})
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, KindAlreadyLoaded, lerr.Kind)
}

func TestLoadCapacityExceeded(t *testing.T) {
	l := New(1, newFakeHost())
	l.modules["other"] = &LoadedModule{Name: "other"}

	_, err := l.Load("sg", []byte{0x01})
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, KindCapacityExceeded, lerr.Kind)
}

func TestUnloadNotFound(t *testing.T) {
	l := New(8, newFakeHost())
	err := l.Unload("missing")
	require.Error(t, err)
	var lerr *Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, KindNotFound, lerr.Kind)
}

func TestCountAndLoaded(t *testing.T) {
	l := New(8, newFakeHost())
	assert.Equal(t, 0, l.Count())
	assert.False(t, l.Loaded("sg"))

	l.modules["sg"] = &LoadedModule{Name: "sg"}
	assert.Equal(t, 1, l.Count())
	assert.True(t, l.Loaded("sg"))
}

// buildTestInterface lays out a moduleInterfaceRaw plus its NUL-terminated
// name/version strings in a single Go byte slice, the same shape the
// loader expects to find at the address an artifact's entry point
// returns, without requiring a compiled machine-code artifact.
func buildTestInterface(name, version string) (addr uintptr, keepAlive []byte) {
	nameBytes := append([]byte(name), 0)
	versionBytes := append([]byte(version), 0)

	buf := make([]byte, 256)
	copy(buf[64:], nameBytes)
	copy(buf[128:], versionBytes)

	raw := (*moduleInterfaceRaw)(unsafe.Pointer(&buf[0]))
	raw.NamePtr = uintptr(unsafe.Pointer(&buf[64]))
	raw.VersionPtr = uintptr(unsafe.Pointer(&buf[128]))
	raw.InitializePtr = 0xdeadbeef
	raw.DeinitializePtr = 0xdeadbeef
	raw.UpdatePtr = 0xdeadbeef
	raw.FunctionsPtr = 0

	return uintptr(unsafe.Pointer(&buf[0])), buf
}

func TestParseModuleInterfaceValid(t *testing.T) {
	addr, keepAlive := buildTestInterface("sg", "1.2.3")
	_ = keepAlive

	iface, ok := parseModuleInterface(addr)
	require.True(t, ok)
	assert.Equal(t, "sg", iface.name)
	assert.Equal(t, "1.2.3", iface.version)
}

func TestParseModuleInterfaceNullName(t *testing.T) {
	addr, keepAlive := buildTestInterface("sg", "1.2.3")
	_ = keepAlive

	raw := (*moduleInterfaceRaw)(unsafe.Pointer(addr))
	raw.NamePtr = 0

	_, ok := parseModuleInterface(addr)
	assert.False(t, ok)
}

func TestParseModuleInterfaceNullAddr(t *testing.T) {
	_, ok := parseModuleInterface(0)
	assert.False(t, ok)
}

package loader

import (
	"unsafe"

	"github.com/ebitengine/purego"
)

// SystemApi is the frozen function-pointer table passed to every module's
// entry point and to initialize. Field order is part of the ABI and must
// never change; new host capabilities are appended, never inserted.
//
// Each field holds a C-callable function pointer produced by
// purego.NewCallback wrapping a Go function, the mechanism this codebase
// uses wherever a raw address must be handed to code outside the Go
// runtime (see buildSystemAPI).
type SystemApi struct {
	Log             uintptr // void log(int32 level, const char *msg, int32 len)
	Now             uintptr // int64 now()
	ReadSensor      uintptr // int32 read_sensor(int32 channel)
	PersistGet      uintptr // int32 persist_get(const char *key, int32 key_len, char *out, int32 out_cap)
	PersistSet      uintptr // int32 persist_set(const char *key, int32 key_len, const char *val, int32 val_len)
	QueryModule     uintptr // int32 query_module(const char *name, int32 name_len)
}

// moduleInterfaceRaw mirrors the module's frozen ModuleInterface layout
// byte-for-byte:
//
//	{ name: *const u8, version: *const u8,
//	  initialize: fn(*const SystemApi) -> bool, deinitialize: fn(), update: fn(),
//	  functions: *const u8 }
type moduleInterfaceRaw struct {
	NamePtr         uintptr
	VersionPtr      uintptr
	InitializePtr   uintptr
	DeinitializePtr uintptr
	UpdatePtr       uintptr
	FunctionsPtr    uintptr
}

// moduleInterface is the parsed, Go-friendly form of moduleInterfaceRaw.
type moduleInterface struct {
	name            string
	version         string
	initializePtr   uintptr
	deinitializePtr uintptr
	updatePtr       uintptr
	functionsPtr    uintptr
}

// maxCStringScan bounds the defensive null-terminator scan in readCString
// so a malformed artifact cannot make the loader walk off into unmapped
// memory indefinitely.
const maxCStringScan = 4096

// readCString reads a NUL-terminated string starting at addr, stopping at
// maxCStringScan bytes even if no terminator is found (treated as
// invalid by the caller).
func readCString(addr uintptr) (string, bool) {
	if addr == 0 {
		return "", false
	}
	for n := 0; n < maxCStringScan; n++ {
		b := *(*byte)(unsafe.Pointer(addr + uintptr(n)))
		if b == 0 {
			data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
			return string(data), true
		}
	}
	return "", false
}

// parseModuleInterface reads a moduleInterfaceRaw at addr and validates
// the fields the loader requires to be non-null.
func parseModuleInterface(addr uintptr) (*moduleInterface, bool) {
	if addr == 0 {
		return nil, false
	}
	raw := (*moduleInterfaceRaw)(unsafe.Pointer(addr))

	if raw.NamePtr == 0 || raw.VersionPtr == 0 || raw.InitializePtr == 0 {
		return nil, false
	}

	name, ok := readCString(raw.NamePtr)
	if !ok {
		return nil, false
	}
	version, ok := readCString(raw.VersionPtr)
	if !ok {
		return nil, false
	}

	return &moduleInterface{
		name:            name,
		version:         version,
		initializePtr:   raw.InitializePtr,
		deinitializePtr: raw.DeinitializePtr,
		updatePtr:       raw.UpdatePtr,
		functionsPtr:    raw.FunctionsPtr,
	}, true
}

// callEntryPoint invokes the artifact's entry point at offset 0 with a
// pointer to api, returning the address of the ModuleInterface it
// produced (0 on a null return).
func callEntryPoint(entry uintptr, api *SystemApi) uintptr {
	r1, _, _ := purego.SyscallN(entry, uintptr(unsafe.Pointer(api)))
	return r1
}

// callInitialize invokes initialize(&api), returning true iff the module
// reported success (any non-zero return counts as success).
func callInitialize(initializePtr uintptr, api *SystemApi) bool {
	r1, _, _ := purego.SyscallN(initializePtr, uintptr(unsafe.Pointer(api)))
	return r1 != 0
}

// callDeinitialize invokes deinitialize().
func callDeinitialize(deinitializePtr uintptr) {
	if deinitializePtr == 0 {
		return
	}
	purego.SyscallN(deinitializePtr)
}

// callUpdate invokes update().
func callUpdate(updatePtr uintptr) {
	if updatePtr == 0 {
		return
	}
	purego.SyscallN(updatePtr)
}

package loader

import (
	"github.com/ebitengine/purego"
)

// HostAPI is the Go-side implementation of the capabilities exposed to
// modules through SystemApi: logging, time, sensor reads, persistence,
// and inter-module queries. The host process supplies one HostAPI;
// buildSystemAPI wraps each method as a C-callable function pointer.
type HostAPI interface {
	Log(level int32, msg string)
	Now() int64
	ReadSensor(channel int32) int32
	PersistGet(key string) (string, bool)
	PersistSet(key, value string) bool
	QueryModule(name string) int32
}

// buildSystemAPI wraps host's methods as C-callable function pointers via
// purego.NewCallback and assembles the frozen SystemApi table handed to
// every module. The returned table's pointer identity is stable for the
// lifetime of the process: it is built once and reused across loads.
func buildSystemAPI(host HostAPI) *SystemApi {
	api := &SystemApi{}

	api.Log = purego.NewCallback(func(level int32, msgPtr uintptr, length int32) {
		msg, _ := readFixedString(msgPtr, int(length))
		host.Log(level, msg)
	})

	api.Now = purego.NewCallback(func() int64 {
		return host.Now()
	})

	api.ReadSensor = purego.NewCallback(func(channel int32) int32 {
		return host.ReadSensor(channel)
	})

	api.PersistGet = purego.NewCallback(func(keyPtr uintptr, keyLen int32, outPtr uintptr, outCap int32) int32 {
		key, _ := readFixedString(keyPtr, int(keyLen))
		val, ok := host.PersistGet(key)
		if !ok {
			return -1
		}
		n := copyIntoBuffer(outPtr, int(outCap), val)
		return int32(n)
	})

	api.PersistSet = purego.NewCallback(func(keyPtr uintptr, keyLen int32, valPtr uintptr, valLen int32) int32 {
		key, _ := readFixedString(keyPtr, int(keyLen))
		val, _ := readFixedString(valPtr, int(valLen))
		if host.PersistSet(key, val) {
			return 1
		}
		return 0
	})

	api.QueryModule = purego.NewCallback(func(namePtr uintptr, nameLen int32) int32 {
		name, _ := readFixedString(namePtr, int(nameLen))
		return host.QueryModule(name)
	})

	return api
}

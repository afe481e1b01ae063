package main

import (
	"sync"
	"time"

	"github.com/cuemby/otaagent/pkg/log"
	"github.com/cuemby/otaagent/pkg/version"
)

// agentHostAPI is the process's implementation of loader.HostAPI: the
// capability table every loaded module's SystemApi pointer resolves to.
// Persistence is an in-memory map for now, a durable backing store is a
// straightforward swap behind the same PersistGet/PersistSet signatures.
type agentHostAPI struct {
	mu      sync.Mutex
	kv      map[string]string
	tracker *version.Tracker
}

func newAgentHostAPI(tracker *version.Tracker) *agentHostAPI {
	return &agentHostAPI{kv: map[string]string{}, tracker: tracker}
}

func (h *agentHostAPI) Log(level int32, msg string) {
	logger := log.WithComponent("module")
	switch {
	case level <= 0:
		logger.Debug().Msg(msg)
	case level == 1:
		logger.Info().Msg(msg)
	case level == 2:
		logger.Warn().Msg(msg)
	default:
		logger.Error().Msg(msg)
	}
}

func (h *agentHostAPI) Now() int64 {
	return time.Now().Unix()
}

// ReadSensor has no hardware backing in this reference agent; modules
// calling it off-target always read zero.
func (h *agentHostAPI) ReadSensor(channel int32) int32 {
	return 0
}

func (h *agentHostAPI) PersistGet(key string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	v, ok := h.kv[key]
	return v, ok
}

func (h *agentHostAPI) PersistSet(key, value string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.kv[key] = value
	return true
}

// QueryModule reports whether another module is currently tracked as
// loaded: 1 if so, 0 otherwise. Modules use this to sequence behavior
// against their dependencies' presence.
func (h *agentHostAPI) QueryModule(name string) int32 {
	if _, ok := h.tracker.Get(name); ok {
		return 1
	}
	return 0
}

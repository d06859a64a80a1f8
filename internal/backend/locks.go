package backend

import "sync"

// HostLocks hands out one mutex per remote host, created on first use
type HostLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewHostLocks() *HostLocks {
	return &HostLocks{locks: map[string]*sync.Mutex{}}
}

// For returns the mutex serializing commands to host
func (h *HostLocks) For(host string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.locks[host]
	if !ok {
		l = &sync.Mutex{}
		h.locks[host] = l
	}
	return l
}

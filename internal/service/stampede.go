package service

import "sync"

// stampedeTracker counts concurrent upstream fetches per key. When multiple
// requests miss the same key simultaneously the concurrent count exceeds 1,
// which the service reports through the coalesced-requests metric.
type stampedeTracker struct {
	mu           sync.Mutex
	activeMisses map[string]int
}

func newStampedeTracker() *stampedeTracker {
	return &stampedeTracker{activeMisses: make(map[string]int)}
}

// RecordMiss records an upstream fetch starting for key and returns the
// concurrent count after incrementing. Caller should defer RecordDone(key).
func (st *stampedeTracker) RecordMiss(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.activeMisses[key]++
	return st.activeMisses[key]
}

// RecordDone records completion of a fetch for key.
func (st *stampedeTracker) RecordDone(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if count, ok := st.activeMisses[key]; ok && count > 0 {
		st.activeMisses[key]--
		if st.activeMisses[key] == 0 {
			delete(st.activeMisses, key)
		}
	}
}

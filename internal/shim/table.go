package shim

import "sync"

// maxTrackedFDs bounds the listener table. Descriptors at or beyond the
// bound are simply not tracked; that is a defined outcome, not an error.
const maxTrackedFDs = 1024

type family uint8

const (
	familyNone family = iota
	familyTCP4
	familyTCP6
)

func (f family) String() string {
	switch f {
	case familyTCP4:
		return "tcp4"
	case familyTCP6:
		return "tcp6"
	default:
		return "none"
	}
}

// tableEntry describes one tracked descriptor. The zero value means
// untracked.
type tableEntry struct {
	stream    bool
	listening bool
	fam       family
	port      uint16
}

// listenerTable is the single piece of mutable state shared across the
// hosting process's threads. Every access happens under mu, and nothing
// that blocks (in particular control-channel I/O) runs while mu is held.
type listenerTable struct {
	mu      sync.Mutex
	entries [maxTrackedFDs]tableEntry
}

// track records fd as a stream socket of the given family, replacing any
// previous entry for the descriptor.
func (t *listenerTable) track(fd int, fam family) {
	if fd < 0 || fd >= maxTrackedFDs {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[fd] = tableEntry{stream: true, fam: fam}
}

// markListening flips a tracked entry into the active-listener state and
// records the resolved port. It reports the entry's family and whether the
// descriptor newly transitioned into the listening state; an untracked
// descriptor or a repeat listen (the kernel allows one, to adjust the
// backlog) reports false so the caller announces each listener once.
func (t *listenerTable) markListening(fd int, port uint16) (family, bool) {
	if fd < 0 || fd >= maxTrackedFDs {
		return familyNone, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := &t.entries[fd]
	if !e.stream {
		return familyNone, false
	}
	if e.listening {
		return e.fam, false
	}
	e.listening = true
	e.port = port
	return e.fam, true
}

// clear wipes fd's entry and returns the previous contents. Clearing is
// unconditional so a reused descriptor number always starts from a clean
// slate.
func (t *listenerTable) clear(fd int) tableEntry {
	if fd < 0 || fd >= maxTrackedFDs {
		return tableEntry{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[fd]
	t.entries[fd] = tableEntry{}
	return e
}

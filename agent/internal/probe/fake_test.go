package probe

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// reply is one scripted command result.
type reply struct {
	out string
	err error
}

// fakeRunner answers commands from a script keyed by the full command line.
// Unscripted commands behave as if the utility is not installed.
type fakeRunner struct {
	mu      sync.Mutex
	replies map[string]reply
	calls   []string
}

func newFakeRunner(replies map[string]reply) *fakeRunner {
	return &fakeRunner{replies: replies}
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	key := strings.TrimSpace(name + " " + strings.Join(args, " "))
	f.mu.Lock()
	f.calls = append(f.calls, key)
	r, ok := f.replies[key]
	f.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%s: %w", name, ErrCommandNotFound)
	}
	return r.out, r.err
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package state

import "sync"

// Transcript is an append-only log of human-readable progress messages.
// It is kept for audit and debugging; nothing reads it to make decisions.
type Transcript struct {
	mu       sync.Mutex
	messages []string
}

// Append adds msg to the end of the transcript.
func (t *Transcript) Append(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, msg)
}

// Messages returns a copy of the transcript.
func (t *Transcript) Messages() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.messages...)
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

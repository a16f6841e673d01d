package actor

import "sync"

// Mailbox is an unbounded multi-producer FIFO. Post never blocks, so the loop
// can enqueue follow-up commands onto its own mailbox.
type Mailbox struct {
	mu     sync.Mutex
	items  []Command
	closed bool
	signal chan struct{}
}

func NewMailbox() *Mailbox {
	return &Mailbox{signal: make(chan struct{}, 1)}
}

// Post appends cmd and reports false when the mailbox is closed.
func (m *Mailbox) Post(cmd Command) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, cmd)
	m.mu.Unlock()
	m.wake()
	return true
}

// Close rejects further posts. Commands already queued are still delivered.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wake()
}

// Ready fires after a Post or Close.
func (m *Mailbox) Ready() <-chan struct{} {
	return m.signal
}

// Pop removes the oldest command. done is true once the mailbox is closed
// and empty.
func (m *Mailbox) Pop() (cmd Command, ok bool, done bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) == 0 {
		return nil, false, m.closed
	}
	cmd = m.items[0]
	m.items[0] = nil
	m.items = m.items[1:]
	if len(m.items) == 0 {
		m.items = nil
	}
	return cmd, true, false
}

func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *Mailbox) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

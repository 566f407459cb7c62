package manager

import (
	"fmt"

	"github.com/loykin/shellvisr/internal/shell"
)

// ptyFor resolves the in-memory PTY state for id. Headless shells, and
// interactive shells adopted from a previous run (whose master descriptor
// died with that process), have none.
func (m *Manager) ptyFor(id string) (*shell.PTY, error) {
	p, ok := m.ptys[id]
	if !ok {
		return nil, fmt.Errorf("%w: no interactive session for shell %s", shell.ErrNotFound, id)
	}
	return p, nil
}

// Write sends data to the shell's terminal.
func (m *Manager) Write(id string, data []byte) error {
	m.mu.Lock()
	p, err := m.ptyFor(id)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	_, err = p.Write(data)
	return err
}

// Subscribe attaches a live output stream to the shell's terminal. The
// channel buffers up to 256 chunks and drops on overflow; it is closed
// when the PTY shuts down. Callers detach with Unsubscribe.
func (m *Manager) Subscribe(id string) (chan []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.ptyFor(id)
	if err != nil {
		return nil, err
	}
	return p.Subscribe(), nil
}

// Unsubscribe detaches ch from the shell's output. Unknown ids and handles
// are tolerated.
func (m *Manager) Unsubscribe(id string, ch chan []byte) {
	m.mu.Lock()
	p, ok := m.ptys[id]
	m.mu.Unlock()
	if ok {
		p.Unsubscribe(ch)
	}
}

// Resize updates the terminal dimensions, best-effort.
func (m *Manager) Resize(id string, cols, rows uint16) error {
	m.mu.Lock()
	p, err := m.ptyFor(id)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if err := p.Resize(cols, rows); err != nil {
		// Best-effort by contract; a failed TIOCSWINSZ is not actionable
		// for the caller.
		return nil
	}
	return nil
}

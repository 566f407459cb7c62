package shell

import (
	"fmt"
	"os"
	"sync"

	"github.com/creack/pty"
)

const (
	ptyReadBufSize  = 4096
	subscriberQueue = 256
)

// PTY owns the master side of one interactive shell. A dedicated reader
// goroutine tees everything the terminal produces into the stdout log and
// fans it out to subscribers. In-memory only: this state dies with the
// supervising process and is never reconstructed for adopted shells.
type PTY struct {
	id     string
	master *os.File
	log    *os.File

	mu     sync.Mutex
	subs   map[chan []byte]struct{}
	closed bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewPTY takes ownership of master and starts the reader. The stdout log is
// opened in append mode so a restarted shell keeps extending the same file.
func NewPTY(id string, master *os.File, stdoutLog string) (*PTY, error) {
	logF, err := os.OpenFile(stdoutLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	p := &PTY{
		id:     id,
		master: master,
		log:    logF,
		subs:   make(map[chan []byte]struct{}),
		done:   make(chan struct{}),
	}
	go p.read()
	return p, nil
}

// read blocks on the master until it errors: EIO/EOF once the child is
// gone, or a closed-file error after Close. Either way the subscribers are
// torn down exactly once.
func (p *PTY) read() {
	defer close(p.done)
	buf := make([]byte, ptyReadBufSize)
	for {
		n, err := p.master.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			_, _ = p.log.Write(chunk)
			p.broadcast(chunk)
		}
		if err != nil {
			break
		}
	}
	_ = p.log.Close()
	p.mu.Lock()
	p.closed = true
	for ch := range p.subs {
		close(ch)
	}
	p.subs = nil
	p.mu.Unlock()
}

// broadcast delivers chunk to every subscriber without blocking; a
// subscriber whose queue is full drops this chunk. Delivery is best-effort
// by contract.
func (p *PTY) broadcast(chunk []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	for ch := range p.subs {
		select {
		case ch <- chunk:
		default:
		}
	}
}

// Subscribe attaches a live output stream. The channel holds up to
// subscriberQueue chunks, drops on overflow, and is closed when the PTY
// shuts down.
func (p *PTY) Subscribe() chan []byte {
	ch := make(chan []byte, subscriberQueue)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		close(ch)
		return ch
	}
	p.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe detaches and closes ch. Unknown handles are ignored.
func (p *PTY) Unsubscribe(ch chan []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.subs[ch]; ok {
		delete(p.subs, ch)
		close(ch)
	}
}

// Write sends data to the shell's terminal.
func (p *PTY) Write(data []byte) (int, error) {
	n, err := p.master.Write(data)
	if err != nil {
		return n, fmt.Errorf("pty %s: %w", p.id, err)
	}
	return n, nil
}

// Resize updates the terminal dimensions.
func (p *PTY) Resize(cols, rows uint16) error {
	return pty.Setsize(p.master, &pty.Winsize{Cols: cols, Rows: rows})
}

// Close releases the master descriptor and waits for the reader to finish.
// Idempotent; closing the master is what unblocks a reader still inside
// Read.
func (p *PTY) Close() {
	p.closeOnce.Do(func() { _ = p.master.Close() })
	<-p.done
}

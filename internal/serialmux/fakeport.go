package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

var errPortClosed = errors.New("serial port closed")

// FakePort is an in-memory SerialPorter for tests. Reads drain what Feed
// supplied and then report io.EOF, unless Hold was called, in which case
// they block for more input or Close.
type FakePort struct {
	mu      sync.Mutex
	cond    *sync.Cond
	in      bytes.Buffer
	out     bytes.Buffer
	hold    bool
	closed  bool
	failErr error
	short   bool
}

func NewFakePort() *FakePort {
	p := &FakePort{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Feed queues controller output.
func (p *FakePort) Feed(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in.WriteString(s)
	p.cond.Broadcast()
}

// Hold makes reads on an empty port block.
func (p *FakePort) Hold() {
	p.mu.Lock()
	p.hold = true
	p.mu.Unlock()
}

// FailNextWrite makes the next Write return err.
func (p *FakePort) FailNextWrite(err error) {
	p.mu.Lock()
	p.failErr = err
	p.mu.Unlock()
}

// ShortWrites makes every Write accept one byte less than given.
func (p *FakePort) ShortWrites() {
	p.mu.Lock()
	p.short = true
	p.mu.Unlock()
}

// Written returns everything written so far.
func (p *FakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.String()
}

func (p *FakePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *FakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.hold && !p.closed && p.in.Len() == 0 {
		p.cond.Wait()
	}
	if p.closed {
		return 0, errPortClosed
	}
	if p.in.Len() == 0 {
		return 0, io.EOF
	}
	return p.in.Read(b)
}

func (p *FakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errPortClosed
	}
	if err := p.failErr; err != nil {
		p.failErr = nil
		return 0, err
	}
	n, _ := p.out.Write(b)
	if p.short && n > 0 {
		n--
	}
	return n, nil
}

func (p *FakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

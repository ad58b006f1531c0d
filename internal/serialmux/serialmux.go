// Package serialmux owns the serial link to the robot's motor and sensor
// controller. Telemetry lines are fanned out to any number of subscribers;
// commands from every caller are serialized onto the one port.
package serialmux

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

var (
	// ErrWriteFailed is returned when the port accepts only part of a command.
	ErrWriteFailed = errors.New("failed to write to serial port")
	// ErrClosed is returned by SendCommand after Close.
	ErrClosed = errors.New("serial mux closed")
)

// SerialPorter is the part of a serial port the mux needs.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// SerialMuxInterface is the controller link as used by the rest of the
// robot. The simulator substitutes DisabledSerialMux.
type SerialMuxInterface interface {
	// Subscribe returns an ID and a channel receiving every telemetry line
	// read after the call.
	Subscribe() (string, chan string)
	// Unsubscribe closes and forgets the channel.
	Unsubscribe(string)
	// SendCommand writes one command line to the controller.
	SendCommand(string) error
	// Initialize sends the controller's start-up commands in order.
	Initialize(commands ...string) error
	// Monitor reads telemetry until the port ends or ctx is done.
	Monitor(context.Context) error
	// Close closes every subscriber and then the port.
	Close() error
	// Stats reports traffic counters.
	Stats() Stats

	// AttachAdminRoutes mounts the link's pages under /debug/. tsweb
	// restricts them to loopback and tailnet callers.
	AttachAdminRoutes(*http.ServeMux)
}

// Stats counts traffic over the link.
type Stats struct {
	Lines       map[string]uint64 `json:"lines"`
	Dropped     uint64            `json:"dropped"`
	Commands    uint64            `json:"commands"`
	Subscribers int               `json:"subscribers"`
	LastLine    string            `json:"last_line,omitempty"`
	LastLineAt  time.Time         `json:"last_line_at,omitempty"`
}

// SerialMux multiplexes one SerialPorter.
type SerialMux[T SerialPorter] struct {
	port T
	subs *fanout

	writeMu  sync.Mutex
	commands uint64

	statsMu  sync.Mutex
	lines    map[string]uint64
	lastLine string
	lastAt   time.Time
}

// NewSerialMux wraps port. The mux takes ownership and closes it on Close.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:  port,
		subs:  newFanout(),
		lines: make(map[string]uint64),
	}
}

func (s *SerialMux[T]) Subscribe() (string, chan string) { return s.subs.add(subscriberBuffer) }

func (s *SerialMux[T]) Unsubscribe(id string) { s.subs.remove(id) }

// SendCommand appends a newline when missing and writes the command whole.
func (s *SerialMux[T]) SendCommand(command string) error {
	if s.subs.isClosed() {
		return ErrClosed
	}
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	s.commands++
	return nil
}

// Initialize sends each start-up command in order, stopping at the first
// failure.
func (s *SerialMux[T]) Initialize(commands ...string) error {
	for _, command := range commands {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send start command %q: %w", command, err)
		}
	}
	return nil
}

// record counts a line and reports whether it should be published.
// Blank lines and carriage returns from the firmware are dropped here.
func (s *SerialMux[T]) record(raw string) (string, bool) {
	line := strings.TrimRight(raw, "\r")
	if strings.TrimSpace(line) == "" {
		return "", false
	}
	s.statsMu.Lock()
	s.lines[ClassifyPayload(line)]++
	s.lastLine = line
	s.lastAt = time.Now()
	s.statsMu.Unlock()
	return line, true
}

// Monitor scans the port on a helper goroutine so that a blocked read
// does not delay cancellation. It returns nil at end of input or after
// Close, and ctx.Err() on cancellation.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scan := bufio.NewScanner(s.port)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scan.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil && !s.subs.isClosed() {
						return err
					}
				default:
				}
				return nil
			}
			if s.subs.isClosed() {
				return nil
			}
			if line, ok := s.record(raw); ok {
				s.subs.publish(line)
			}
		}
	}
}

func (s *SerialMux[T]) Close() error {
	if !s.subs.shut() {
		return nil
	}
	return s.port.Close()
}

func (s *SerialMux[T]) Stats() Stats {
	st := Stats{Lines: make(map[string]uint64)}
	st.Subscribers, st.Dropped = s.subs.counts()

	s.writeMu.Lock()
	st.Commands = s.commands
	s.writeMu.Unlock()

	s.statsMu.Lock()
	for k, v := range s.lines {
		st.Lines[k] = v
	}
	st.LastLine, st.LastLineAt = s.lastLine, s.lastAt
	s.statsMu.Unlock()
	return st
}

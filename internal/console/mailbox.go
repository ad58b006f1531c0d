package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/banshee-data/gridrunner/internal/monitoring"
)

// ErrMailboxFull is returned when a command cannot be queued.
var ErrMailboxFull = errors.New("command mailbox full")

// DefaultMailboxSize is the queue depth used by cmd/gridrunner.
const DefaultMailboxSize = 16

// Mailbox is a bounded queue from any number of producers to the single
// planner loop.
type Mailbox struct {
	ch chan Command
}

// NewMailbox creates a mailbox holding up to size commands.
func NewMailbox(size int) *Mailbox {
	if size < 1 {
		size = 1
	}
	return &Mailbox{ch: make(chan Command, size)}
}

// Post queues c without blocking.
func (m *Mailbox) Post(c Command) error {
	select {
	case m.ch <- c:
		return nil
	default:
		return fmt.Errorf("%s from %s: %w", c, c.Source, ErrMailboxFull)
	}
}

// PostLine parses line and queues the command.
func (m *Mailbox) PostLine(line, source string) (Command, error) {
	c, err := Parse(line)
	if err != nil {
		return Command{}, err
	}
	c.Source = source
	return c, m.Post(c)
}

// Poll removes the oldest command, if any, without blocking.
func (m *Mailbox) Poll() (Command, bool) {
	select {
	case c := <-m.ch:
		return c, true
	default:
		return Command{}, false
	}
}

// Len returns the number of queued commands.
func (m *Mailbox) Len() int { return len(m.ch) }

// ReadLoop posts one command per line of r until EOF or ctx is done.
// Parse errors are written to errOut and do not stop the loop.
func ReadLoop(ctx context.Context, r io.Reader, m *Mailbox, source string, errOut io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		s := bufio.NewScanner(r)
		for s.Scan() {
			select {
			case lines <- s.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- s.Err()
	}()
	return FeedLines(ctx, lines, m, source, errOut, scanErr)
}

// FeedLines posts commands read from a channel, as delivered by a serial
// subscription. It returns when lines is closed or ctx is done. done, when
// non-nil, supplies the producer's terminal error after lines closes.
func FeedLines(ctx context.Context, lines <-chan string, m *Mailbox, source string, errOut io.Writer, done <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if done != nil {
					select {
					case err := <-done:
						return err
					default:
					}
				}
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if strings.EqualFold(line, "help") {
				fmt.Fprintln(errOut, Help)
				continue
			}
			c, err := m.PostLine(line, source)
			if err != nil {
				fmt.Fprintf(errOut, "%v\n", err)
				monitoring.Logf("console %s: %v", source, err)
				continue
			}
			monitoring.Logf("console %s: queued %s", source, c)
		}
	}
}

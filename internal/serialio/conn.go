// Package serialio provides shared access to a command/response serial
// device. A Conn owns the port: commands are serialized so request and
// response lines cannot interleave, each response is matched to the
// in-flight command by its echo prefix, and every raw line additionally
// fans out to subscribers for the debug tail.
package serialio

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
)

var (
	// ErrWriteFailed reports a short write to the serial port.
	ErrWriteFailed = fmt.Errorf("failed to write to serial port")
	// ErrPortClosed reports an operation on a Conn whose monitor has exited.
	ErrPortClosed = fmt.Errorf("serial port closed")
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// Conn multiplexes a command/response serial device. The device answers
// each command with a single line echoing the command code after an '@',
// so responses can be routed to the caller that issued the command while
// raw traffic is still observable on the tail.
type Conn struct {
	port SerialPorter

	// AllowCommand, when set, gates commands arriving through the admin
	// console. Programmatic callers (Transact, SendCommand) bypass it.
	AllowCommand func(command string) bool

	commandMu sync.Mutex // serializes Transact and SendCommand

	pendingMu sync.Mutex
	pending   *pendingReply

	subscriberMu sync.Mutex
	subscribers  map[string]chan string

	closingMu sync.Mutex
	closing   bool

	done chan struct{} // closed when Monitor exits
}

type pendingReply struct {
	prefix string
	ch     chan string
}

// NewConn creates a Conn over an already-open port.
func NewConn(port SerialPorter) *Conn {
	return &Conn{
		port:        port,
		subscribers: make(map[string]chan string),
		done:        make(chan struct{}),
	}
}

// Open opens the serial device at path with the given options and returns a
// Conn over it.
func Open(path string, opts PortOptions) (*Conn, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	return NewConn(port), nil
}

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a new channel receiving every raw line read from the
// port. The channel ID identifies the subscription when unsubscribing.
func (c *Conn) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)
	c.subscriberMu.Lock()
	defer c.subscriberMu.Unlock()
	c.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (c *Conn) Unsubscribe(id string) {
	c.subscriberMu.Lock()
	defer c.subscriberMu.Unlock()
	if ch, ok := c.subscribers[id]; ok {
		close(ch)
		delete(c.subscribers, id)
	}
}

// responsePrefix derives the echo prefix a command's response carries. The
// device answers command "R00" with a line starting "@R00". Command codes
// are three characters; anything after them is payload and not echoed.
func responsePrefix(command string) string {
	if len(command) > 3 {
		command = command[:3]
	}
	return "@" + command
}

// write sends a single CR-terminated command to the port.
func (c *Conn) write(command string) error {
	payload := []byte(command)
	if !bytes.HasSuffix(payload, []byte("\r")) {
		payload = append(payload, '\r')
	}
	n, err := c.port.Write(payload)
	if err != nil {
		return err
	}
	if n != len(payload) {
		return ErrWriteFailed
	}
	return nil
}

// SendCommand writes the command without waiting for a response. Used by
// the admin send-command route; the response, if any, shows up on the tail.
func (c *Conn) SendCommand(command string) error {
	c.commandMu.Lock()
	defer c.commandMu.Unlock()
	return c.write(command)
}

// Transact writes the command and blocks until the device's response line
// arrives, the context is cancelled, or the monitor exits. The Conn must
// have a running Monitor for responses to be delivered.
func (c *Conn) Transact(ctx context.Context, command string) (string, error) {
	c.commandMu.Lock()
	defer c.commandMu.Unlock()

	select {
	case <-c.done:
		return "", ErrPortClosed
	default:
	}

	// Register the waiter before writing so a fast response cannot slip
	// past between the write and the wait.
	ch := make(chan string, 1)
	c.pendingMu.Lock()
	c.pending = &pendingReply{prefix: responsePrefix(command), ch: ch}
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		c.pending = nil
		c.pendingMu.Unlock()
	}()

	if err := c.write(command); err != nil {
		return "", err
	}

	select {
	case line := <-ch:
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", ErrPortClosed
	}
}

// scanResponses is a bufio.SplitFunc for the device's line discipline:
// lines end in CR, LF, or CRLF depending on firmware, and empty lines are
// skipped by the caller.
func scanResponses(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance = i + 1
		// swallow the LF of a CRLF pair
		if data[i] == '\r' && len(data) > i+1 && data[i+1] == '\n' {
			advance++
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Monitor reads lines from the serial port, routes responses to the caller
// blocked in Transact, and fans every line out to subscribers. It returns
// when the context is cancelled, the port EOFs, or a read error occurs.
func (c *Conn) Monitor(ctx context.Context) error {
	defer close(c.done)

	scan := bufio.NewScanner(c.port)
	scan.Split(scanResponses)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan.Scan runs in its own goroutine so the outer loop
	// can still observe context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			line := scan.Text()
			if line == "" {
				continue
			}
			select {
			case lineChan <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}

			c.closingMu.Lock()
			if c.closing {
				c.closingMu.Unlock()
				return nil
			}
			c.closingMu.Unlock()

			c.dispatch(line)
		}
	}
}

// dispatch delivers a line to the pending transaction when its prefix
// matches, and to every subscriber that has room.
func (c *Conn) dispatch(line string) {
	c.pendingMu.Lock()
	if p := c.pending; p != nil && len(line) >= len(p.prefix) && line[:len(p.prefix)] == p.prefix {
		select {
		case p.ch <- line:
		default:
		}
		c.pending = nil
	}
	c.pendingMu.Unlock()

	c.subscriberMu.Lock()
	for _, ch := range c.subscribers {
		select {
		case ch <- line:
		default:
			// skip full/blocked subscribers so the monitor never stalls
		}
	}
	c.subscriberMu.Unlock()
}

// Close closes all subscribed channels and the underlying port.
func (c *Conn) Close() error {
	c.closingMu.Lock()
	c.closing = true
	c.closingMu.Unlock()

	c.subscriberMu.Lock()
	defer c.subscriberMu.Unlock()
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
	return c.port.Close()
}

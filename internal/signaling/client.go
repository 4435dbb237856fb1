package signaling

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/BioHazard786/doorcall/internal/callerr"
	"github.com/BioHazard786/doorcall/internal/dns"
	"github.com/BioHazard786/doorcall/internal/events"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	outgoingBuffer = 16
)

// Channel is the signaling surface the session controller drives. Inbound
// events are never returned from these calls; they arrive on the queue the
// channel was built with.
type Channel interface {
	Connect(ctx context.Context, address string) error
	Join(room string) error
	Emit(kind events.Kind, payload events.Payload) error
	Disconnect() error
}

// Option configures a Client.
type Option func(*Client)

// WithTLSInsecure skips certificate verification (self-signed rendezvous servers).
func WithTLSInsecure(insecure bool) Option {
	return func(c *Client) { c.tlsInsecure = insecure }
}

// WithResolver sets the resolver used to dial the server.
func WithResolver(r *dns.Resolver) Option {
	return func(c *Client) { c.resolver = r }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// Client manages the WebSocket connection to the rendezvous server and feeds
// every inbound event into its queue.
type Client struct {
	queue       *events.Queue
	resolver    *dns.Resolver
	tlsInsecure bool
	log         *slog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	outgoing chan *Message
	done     chan struct{}
	writerWG sync.WaitGroup
	readerWG sync.WaitGroup
	closed   bool
}

var _ Channel = (*Client)(nil)

// NewClient creates a signaling client that pushes inbound events to queue.
func NewClient(queue *events.Queue, opts ...Option) *Client {
	c := &Client{
		queue:    queue,
		resolver: dns.NewResolver(),
		log:      slog.Default(),
		outgoing: make(chan *Message, outgoingBuffer),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "signaling")
	return c
}

// Connect establishes the WebSocket connection to address.
func (c *Client) Connect(ctx context.Context, address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return callerr.Wrap("connect", callerr.ErrClosed, address)
	}
	if c.conn != nil {
		return callerr.Wrap("connect", errors.New("already connected"), address)
	}

	dialer := &websocket.Dialer{
		NetDialContext:   c.resolver.DialContext,
		HandshakeTimeout: writeWait,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: c.tlsInsecure},
	}

	conn, _, err := dialer.DialContext(ctx, address, nil)
	if err != nil {
		return callerr.Connection("connect", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.readerWG.Add(1)
	c.writerWG.Add(1)
	go c.readPump()
	go c.writePump()

	c.log.Debug("connected", "address", address)
	return nil
}

// Join asks the server to put this client into room. The answer arrives on the queue.
func (c *Client) Join(room string) error {
	msg, err := NewMessage(EventJoin, room)
	if err != nil {
		return callerr.Wrap("join", err, room)
	}
	return c.send(msg)
}

// Emit sends an outbound event (Acknowledge or Terminate).
func (c *Client) Emit(kind events.Kind, payload events.Payload) error {
	msg, err := Encode(kind, payload)
	if err != nil {
		return callerr.Wrap("emit", err, kind.String())
	}
	return c.send(msg)
}

// Disconnect flushes pending messages, closes the connection and waits for the
// pumps to stop. Safe to call more than once.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	close(c.done)
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	flushed := make(chan struct{})
	go func() {
		c.writerWG.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
	case <-time.After(writeWait):
		c.log.Warn("timed out flushing outgoing messages")
	}

	err := conn.Close()
	c.readerWG.Wait()
	c.log.Debug("disconnected")
	return err
}

func (c *Client) send(msg *Message) error {
	c.mu.Lock()
	connected := c.conn != nil && !c.closed
	c.mu.Unlock()
	if !connected {
		return callerr.Wrap("send", callerr.ErrClosed, msg.Event)
	}

	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return callerr.Wrap("send", callerr.ErrClosed, msg.Event)
	}
}

// readPump reads messages from the WebSocket connection and queues them.
// If the connection drops before Disconnect, the queue is closed with a
// connection error so the consumer stops waiting.
func (c *Client) readPump() {
	defer c.readerWG.Done()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn("signaling connection lost", "error", err)
				c.queue.Close(callerr.Connection("read", err))
			}
			return
		}

		ev, ok := Translate(&msg)
		if !ok {
			c.log.Debug("ignoring message", "event", msg.Event)
			continue
		}
		c.log.Debug("received", "event", ev.String())
		c.queue.Push(ev)
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
// On shutdown it drains what was already queued before sending the close frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.writerWG.Done()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			if err := c.write(msg); err != nil {
				c.log.Warn("write failed", "event", msg.Event, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			for {
				select {
				case msg := <-c.outgoing:
					if err := c.write(msg); err != nil {
						return
					}
				default:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					c.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func (c *Client) write(msg *Message) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		return err
	}
	c.log.Debug("sent", "event", msg.Event)
	return nil
}

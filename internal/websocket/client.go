// Package websocket is a small client-side websocket transport with ordered
// delivery of inbound frames.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ErrClosed is returned when writing to a closed client.
var ErrClosed = errors.New("websocket closed")

const (
	defaultDialTimeout = 10 * time.Second
	queueSize          = 1000
)

type HandlerFunc func(data []byte) error

func Json[T any](j func(x T) error) HandlerFunc {
	return func(data []byte) error {
		var t T
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}

		return j(t)
	}
}

type ClientConfig struct {
	URL         string
	DialTimeout time.Duration
	Headers     http.Header
	OnText      HandlerFunc
	OnBinary    HandlerFunc
	// OnClose is called once after the last inbound frame was handled. err is
	// nil when the connection ended with a close frame or a local Close.
	OnClose func(err error)
	Logger  *slog.Logger
}

type Client struct {
	conn       net.Conn
	out        chan wsutil.Message
	done       chan struct{}
	doneOnce   sync.Once
	writerDone chan struct{}
	closeSent  atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *slog.Logger
}

func (c *Client) setDone() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

// Done is closed once the connection is gone and all inbound frames have been
// handled.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) WriteText(data []byte) error {
	return c.Write(ws.OpText, data)
}

func (c *Client) WriteBinary(data []byte) error {
	return c.Write(ws.OpBinary, data)
}

func (c *Client) Ping(data []byte) error {
	return c.Write(ws.OpPing, data)
}

func (c *Client) SendClose(code ws.StatusCode, reason string) error {
	c.closeSent.Store(true)
	return c.Write(ws.OpClose, ws.NewCloseFrameBody(code, reason))
}

// Close starts the close handshake and waits for the peer to answer. If ctx
// expires first the underlying connection is closed forcibly.
func (c *Client) Close(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	default:
	}

	if err := c.SendClose(ws.StatusNormalClosure, "closing"); err != nil {
		c.logger.Debug("close frame not sent", slog.Any("err", err))
	}

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		_ = c.conn.Close()
		select {
		case <-c.done:
		case <-time.After(time.Second):
		}
		return fmt.Errorf("close failed: %w", ctx.Err())
	}
}

func (c *Client) Write(opcode ws.OpCode, data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-c.ctx.Done():
		return ErrClosed
	default:
	}

	select {
	case c.out <- wsutil.Message{OpCode: opcode, Payload: data}:
		return nil
	case <-c.ctx.Done():
		return ErrClosed
	}
}

func (c *Client) shutdown() {
	c.cancel()
	<-c.writerDone
	_ = c.conn.Close()
}

func (c *Client) writeLoop() {
	defer close(c.writerDone)

	write := func(msg wsutil.Message) bool {
		if err := wsutil.WriteClientMessage(c.conn, msg.OpCode, msg.Payload); err != nil {
			if c.ctx.Err() == nil {
				c.logger.Error("message write error", slog.Any("err", err))
			}
			return false
		}
		return true
	}

	for {
		select {
		case <-c.ctx.Done():
			// flush what is already queued, e.g. a close reply
			for {
				select {
				case msg := <-c.out:
					if !write(msg) {
						return
					}
				default:
					return
				}
			}
		case msg := <-c.out:
			if !write(msg) {
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *Client) readLoop(r io.Reader, input chan<- wsutil.Message, readErr *error) {
	defer close(input)
	for {
		messages, err := wsutil.ReadServerMessage(r, nil)
		if err != nil {
			if !isClosedErr(err) && c.ctx.Err() == nil && !c.closeSent.Load() {
				c.logger.Error("ws read failed", slog.Any("err", err))
				*readErr = err
			}
			return
		}
		for _, msg := range messages {
			select {
			case input <- msg:
			case <-c.ctx.Done():
				return
			}
			if msg.OpCode == ws.OpClose {
				return
			}
		}
	}
}

func isClosedErr(err error) bool {
	var closed wsutil.ClosedError
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.As(err, &closed)
}

func Connect(ctx context.Context, config ClientConfig) (*Client, error) {

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With(
		slog.String("url", config.URL),
	)

	dialTimeout := config.DialTimeout
	if dialTimeout == 0 {
		dialTimeout = defaultDialTimeout
	}

	// handshake timeout only
	hsCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	d := ws.Dialer{
		Timeout: dialTimeout,
		Header:  ws.HandshakeHeaderHTTP(config.Headers),
	}
	conn, buf, hs, err := d.Dial(hsCtx, config.URL)
	if err != nil {
		return nil, err
	}
	logger.Debug("handshake complete", slog.Any("handshake", hs))

	// frames sent right after the handshake may already sit in buf
	var reader io.Reader = conn
	if buf != nil {
		reader = buf
	}

	logger.Info("connected to websocket")

	connCtx, connCancel := context.WithCancel(context.Background())
	client := &Client{
		conn:       conn,
		out:        make(chan wsutil.Message, queueSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		ctx:        connCtx,
		cancel:     connCancel,
		logger:     logger,
	}

	onText := config.OnText
	if onText == nil {
		onText = func([]byte) error { return nil }
	}
	onBinary := config.OnBinary
	if onBinary == nil {
		onBinary = func([]byte) error { return nil }
	}
	onClose := config.OnClose
	if onClose == nil {
		onClose = func(error) {}
	}

	var (
		input   = make(chan wsutil.Message, queueSize)
		readErr error
	)

	go client.writeLoop()
	go client.readLoop(reader, input, &readErr)

	// input channel processing; frames are handled strictly in arrival order
	go func() {
		defer func() {
			client.shutdown()
			// readErr is written before input is closed
			onClose(readErr)
			client.setDone()
		}()

		for msg := range input {
			if msg.OpCode.IsControl() {
				logger.Debug("rcv: control", slog.Any("opcode", msg.OpCode), slog.Int("len", len(msg.Payload)))

				switch msg.OpCode {
				case ws.OpPing:
					_ = client.Write(ws.OpPong, msg.Payload)
				case ws.OpClose:
					logger.Debug("rcv: close", slog.String("reason", string(msg.Payload)))
					if !client.closeSent.Load() {
						_ = client.Write(ws.OpClose, msg.Payload)
					}
				}
				continue
			}

			switch msg.OpCode {
			case ws.OpText:
				if err := onText(msg.Payload); err != nil {
					logger.Error("text message handler failed", slog.Any("err", err))
				}

			case ws.OpBinary:
				if err := onBinary(msg.Payload); err != nil {
					logger.Error("binary message handler failed", slog.Any("err", err))
				}
			}
		}
	}()

	_ = client.Ping([]byte("ping"))

	return client, nil
}

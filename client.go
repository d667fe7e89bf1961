// Package realtime is a streaming client for the OpenAI realtime API. It keeps
// the websocket session, turns the server's event stream into conversation
// state and answers function calls with registered tools.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/codewandler/realtime-go/audio"
	"github.com/codewandler/realtime-go/conversation"
	"github.com/codewandler/realtime-go/emitter"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/internal/websocket"
	"github.com/codewandler/realtime-go/metrics"
	"github.com/codewandler/realtime-go/retry"
	"github.com/codewandler/realtime-go/tool"
	"github.com/google/uuid"
	nanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrSessionTimeout   = errors.New("timeout waiting for session")
	ErrInvalidConfig    = errors.New("invalid config")
	ErrConnectionClosed = errors.New("connection closed before session was created")
)

// ServiceSampleRate is the PCM16 sample rate the service speaks.
const ServiceSampleRate = 24_000

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingSession
	StateReady
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingSession:
		return "awaiting_session"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

type Client struct {
	config   *clientConfig
	logger   *slog.Logger
	events   *emitter.Emitter
	tools    *tool.Registry
	services *Services
	store    *conversation.Store
	playback *Playback

	mu             sync.Mutex
	ws             *websocket.Client
	state          State
	active         bool
	generation     uint64
	connID         string
	sessionID      string
	sessionCreated bool
	session        events.SessionConfig
	sessionRev     uint64
	connectedAt    time.Time

	inputMu  sync.Mutex
	inputBuf []byte

	respMu        sync.Mutex
	responseSince time.Time
}

func New(opts ...ClientOption) *Client {
	config := &clientConfig{}
	withDefaults()(config)
	WithOptions(opts...)(config)

	if config.logger == nil {
		config.logger = slog.New(slog.DiscardHandler)
	}
	if config.services == nil {
		config.services = NewServices(0, 0, config.logger)
	}

	c := &Client{
		config:   config,
		logger:   config.logger,
		events:   emitter.New(config.logger),
		tools:    tool.NewRegistry(),
		services: config.services,
		store:    conversation.NewStore(),
		session:  config.session,
	}
	if config.playbackRate > 0 {
		c.playback = newPlayback(config.playbackRate, config.playbackLatency, config.logger)
	}
	for _, t := range config.tools {
		if _, err := c.tools.Add(t.Definition, t.Handler); err != nil {
			panic(fmt.Sprintf("realtime: %v", err))
		}
	}

	return c
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID is the id the service assigned to the current session.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// ConnectionID identifies the current connection attempt in logs.
func (c *Client) ConnectionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID
}

func (c *Client) Conversation() *conversation.Store {
	return c.store
}

func (c *Client) Services() *Services {
	return c.services
}

// Session returns the session configuration as it is published to the service.
func (c *Client) Session() events.SessionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionLocked()
}

func (c *Client) sessionLocked() events.SessionConfig {
	s := c.session
	s.Tools = c.tools.Definitions()
	if len(s.Tools) == 0 {
		s.Tools = nil
	}
	return s
}

// Connect dials the service and blocks until the session is created and
// configured. When the session does not show up in time ErrSessionTimeout is
// returned and the socket stays open; call Disconnect to release it.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.config.validate(); err != nil {
		return retry.Permanent(retry.Categorize("config", fmt.Errorf("%w: %w", ErrInvalidConfig, err)))
	}

	c.mu.Lock()
	if c.active && c.state != StateDisconnected {
		c.mu.Unlock()
		return retry.Permanent(ErrAlreadyConnected)
	}
	stale := c.active
	c.mu.Unlock()

	// the previous transport went away without Disconnect
	if stale {
		_ = c.Disconnect(ctx)
	}

	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.connID = uuid.NewString()
	c.state = StateConnecting
	c.active = true
	connID := c.connID
	c.mu.Unlock()

	logger := c.logger.With(slog.String("conn_id", connID))
	logger.Debug("connecting", slog.String("url", c.config.endpoint()))

	waiter := emitter.Expect(c.events, TopicSessionCreated)
	defer waiter.Cancel()

	ws, err := websocket.Connect(ctx, websocket.ClientConfig{
		URL:         c.config.endpoint(),
		DialTimeout: c.config.dialTimeout,
		Headers:     c.config.handshakeHeaders(),
		Logger:      logger,
		OnText: func(data []byte) error {
			c.handleFrame(gen, data)
			return nil
		},
		OnClose: func(err error) {
			c.transportClosed(gen, err)
		},
	})
	if err != nil {
		c.mu.Lock()
		if c.generation == gen {
			c.state = StateDisconnected
			c.active = false
		}
		c.mu.Unlock()
		return retry.Categorize("transport", fmt.Errorf("dial: %w", err))
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		_ = ws.Close(ctx)
		return ErrNotConnected
	}
	// closed by the server before we got here
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return retry.Categorize("transport", ErrConnectionClosed)
	}
	c.ws = ws
	c.state = StateAwaitingSession
	c.connectedAt = time.Now()
	c.mu.Unlock()

	if err := c.awaitSession(ctx, ws, waiter); err != nil {
		return err
	}

	rev, err := c.publishSession(ctx)
	if err != nil {
		return retry.Categorize("transport", fmt.Errorf("publish session: %w", err))
	}

	c.mu.Lock()
	ready := c.generation == gen && c.ws != nil
	if ready {
		c.state = StateReady
	}
	changed := ready && c.sessionRev != rev
	c.mu.Unlock()

	// tools or session changes made while the first publish was in flight
	if changed {
		if _, err := c.publishSession(ctx); err != nil {
			return retry.Categorize("transport", fmt.Errorf("publish session: %w", err))
		}
	}

	logger.Info("session ready", slog.String("session_id", c.SessionID()))

	return nil
}

// awaitSession waits for session.created. It gives up early when the
// transport goes away in the meantime.
func (c *Client) awaitSession(ctx context.Context, ws *websocket.Client, waiter *emitter.Waiter[*events.SessionCreatedEvent]) error {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-ws.Done():
			cancel()
		case <-waitCtx.Done():
		}
	}()

	_, err := waiter.Wait(waitCtx, c.config.sessionTimeout)
	if err == nil {
		return nil
	}

	select {
	case <-ws.Done():
		if ctx.Err() == nil {
			return retry.Categorize("transport", ErrConnectionClosed)
		}
	default:
	}

	if errors.Is(err, emitter.ErrTimeout) {
		return retry.Categorize("timeout", fmt.Errorf("%w: %w", ErrSessionTimeout, err))
	}
	return err
}

// ConnectWithRetry retries Connect with exponential backoff. Every failed
// attempt is torn down before the next one. Configuration errors and an
// already established connection fail without retrying.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	return c.services.Retry.Do(ctx, func(ctx context.Context) error {
		err := c.Connect(ctx)
		if errors.Is(err, ErrAlreadyConnected) {
			return err
		}
		c.services.Metrics.RecordConnectionAttempt(err == nil)
		if err != nil {
			_ = c.Disconnect(ctx)
			return err
		}
		return nil
	})
}

func (c *Client) transport() *websocket.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws
}

func (c *Client) isGeneration(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen && c.active
}

func (c *Client) transportClosed(gen uint64, err error) {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return
	}
	c.ws = nil
	c.state = StateDisconnected
	c.sessionCreated = false
	c.mu.Unlock()

	if err != nil {
		c.services.Metrics.RecordError("transport")
		c.logger.Warn("connection lost", slog.Any("err", err))
		return
	}
	c.logger.Info("connection closed")
}

// Send writes a client event. A fresh event id is assigned on every call.
func (c *Client) Send(ctx context.Context, evt events.ClientEvent) error {
	ws := c.transport()
	if ws == nil {
		return ErrNotConnected
	}

	base := evt.Base()
	base.EventID = events.NewEventID()

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", base.Type, err)
	}
	if err := ws.WriteText(data); err != nil {
		if errors.Is(err, websocket.ErrClosed) {
			return ErrNotConnected
		}
		return err
	}

	c.services.Metrics.RecordMessage(metrics.Sent)
	if base.Type == events.TypeResponseCreate {
		c.respMu.Lock()
		c.responseSince = time.Now()
		c.respMu.Unlock()
	}

	emitter.Emit(ctx, c.events, ClientEventTopic(base.Type), evt)
	emitter.Emit(ctx, c.events, TopicClientEvent, evt)

	return nil
}

// publishSession sends the current configuration and returns the revision it
// was taken at.
func (c *Client) publishSession(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	session := c.sessionLocked()
	rev := c.sessionRev
	c.mu.Unlock()
	return rev, c.Send(ctx, events.NewSessionUpdate(session))
}

// UpdateSessionConfig merges patch into the session configuration and, when
// the session is ready, republishes the whole configuration.
func (c *Client) UpdateSessionConfig(ctx context.Context, patch events.SessionConfig) error {
	c.mu.Lock()
	c.session = c.session.Merge(patch)
	c.sessionRev++
	ready := c.state == StateReady
	c.mu.Unlock()

	if !ready {
		return nil
	}
	_, err := c.publishSession(ctx)
	return err
}

// AddTool registers a tool. While a session is ready the updated tool list is
// pushed right away, otherwise it goes out with the next Connect.
func (c *Client) AddTool(ctx context.Context, def tool.Definition, h tool.Handler) error {
	if _, err := c.tools.Add(def, h); err != nil {
		return err
	}

	c.mu.Lock()
	c.sessionRev++
	ready := c.state == StateReady
	c.mu.Unlock()

	if !ready {
		return nil
	}
	_, err := c.publishSession(ctx)
	return err
}

func (c *Client) MustAddTool(ctx context.Context, def tool.Definition, h tool.Handler) {
	if err := c.AddTool(ctx, def, h); err != nil {
		panic(err)
	}
}

// SendText adds a user message and asks for a response.
func (c *Client) SendText(ctx context.Context, text string) error {
	return c.SendUserContent(ctx, events.Content{Type: events.ContentInputText, Text: text})
}

// SendUserContent adds a user message made of content and asks for a response.
func (c *Client) SendUserContent(ctx context.Context, content ...events.Content) error {
	id, err := nanoid.New()
	if err != nil {
		return err
	}
	err = c.Send(ctx, events.NewConversationItemCreate(events.Item{
		ID:      "msg_" + id,
		Type:    events.ItemTypeMessage,
		Role:    events.RoleUser,
		Content: content,
	}))
	if err != nil {
		return err
	}

	return c.CreateResponse(ctx)
}

// SendAudio appends user audio to the service's input buffer. data may be
// float samples, PCM16 samples or raw PCM16 bytes.
func (c *Client) SendAudio(ctx context.Context, data any) error {
	raw, ok := audio.ToBytes(data)
	if !ok || len(raw) == 0 {
		c.logger.Debug("skipping empty or unsupported audio")
		return nil
	}

	if err := c.Send(ctx, events.NewInputAudioBufferAppend(audio.EncodeBase64(raw))); err != nil {
		return err
	}

	c.inputMu.Lock()
	c.inputBuf = append(c.inputBuf, raw...)
	c.inputMu.Unlock()

	return nil
}

// CommitAudio commits buffered user audio and asks for a response. The
// response is requested even if nothing was buffered.
func (c *Client) CommitAudio(ctx context.Context) error {
	c.inputMu.Lock()
	pending := c.inputBuf
	c.inputMu.Unlock()

	if len(pending) > 0 {
		if err := c.Send(ctx, events.NewInputAudioBufferCommit()); err != nil {
			return err
		}
		c.store.SetPendingAudio(pending)

		c.inputMu.Lock()
		c.inputBuf = c.inputBuf[len(pending):]
		if len(c.inputBuf) == 0 {
			c.inputBuf = nil
		}
		c.inputMu.Unlock()
	}

	return c.CreateResponse(ctx)
}

// InputBuffered is the number of user audio bytes sent but not committed.
func (c *Client) InputBuffered() int {
	c.inputMu.Lock()
	defer c.inputMu.Unlock()
	return len(c.inputBuf)
}

func (c *Client) CreateResponse(ctx context.Context) error {
	return c.Send(ctx, events.NewResponseCreate())
}

func (c *Client) CreateResponseWithPayload(ctx context.Context, p events.ResponseCreatePayload) error {
	evt := events.NewResponseCreate()
	evt.Response = p
	return c.Send(ctx, evt)
}

// CancelResponse stops the response in progress.
func (c *Client) CancelResponse(ctx context.Context) error {
	return c.Send(ctx, events.NewResponseCancel())
}

// Playback returns the assistant audio stream, or nil without WithPlayback.
func (c *Client) Playback() *Playback {
	return c.playback
}

// AudioWriter returns a writer taking mono PCM16 at sampleRate and streaming
// it to the service.
func (c *Client) AudioWriter(sampleRate int) io.Writer {
	return &audioWriter{client: c, rate: sampleRate}
}

type audioWriter struct {
	client *Client
	rate   int
}

func (w *audioWriter) Write(p []byte) (int, error) {
	pcm, err := audio.ResamplePCM(p, w.rate, ServiceSampleRate)
	if err != nil {
		return 0, err
	}
	if err := w.client.SendAudio(context.Background(), pcm); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Disconnect closes the connection and drops the session, the conversation
// and any buffered audio. Calling it again is a no-op.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return nil
	}
	ws := c.ws
	started := c.connectedAt
	c.ws = nil
	c.active = false
	c.state = StateDisconnected
	c.sessionCreated = false
	c.sessionID = ""
	c.connectedAt = time.Time{}
	c.generation++
	c.mu.Unlock()

	var closeErr error
	if ws != nil {
		closeCtx, cancel := context.WithTimeout(ctx, defaultCloseTimeout)
		closeErr = ws.Close(closeCtx)
		cancel()
	}

	c.store.Reset()
	c.inputMu.Lock()
	c.inputBuf = nil
	c.inputMu.Unlock()
	if c.playback != nil {
		c.playback.Clear()
	}
	if !started.IsZero() {
		c.services.Metrics.RecordSessionDuration(time.Since(started))
	}

	if closeErr != nil {
		c.logger.Warn("close failed", slog.Any("err", closeErr))
		return closeErr
	}
	c.logger.Info("disconnected")
	return nil
}

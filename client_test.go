package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codewandler/realtime-go/config"
	"github.com/codewandler/realtime-go/conversation"
	"github.com/codewandler/realtime-go/emitter"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/retry"
	"github.com/codewandler/realtime-go/tool"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, srv *fakeServer, opts ...ClientOption) (*Client, *serverConn) {
	t.Helper()
	c := srv.client(opts...)
	require.NoError(t, c.Connect(context.Background()))
	sc := srv.conn()
	srv.waitType("session.update")
	return c, sc
}

func getTimeDef() tool.Definition {
	return tool.Definition{
		Name:        "get_time",
		Description: "Returns the current time",
		Parameters: tool.Object(map[string]*jsonschema.Schema{
			"tz": {Type: "string"},
		}),
	}
}

func functionCall(id, callID, name, args string) map[string]any {
	return map[string]any{
		"id":        id,
		"type":      "function_call",
		"status":    "completed",
		"call_id":   callID,
		"name":      name,
		"arguments": args,
	}
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
		var zero T
		return zero
	}
}

func TestConnectPublishesSession(t *testing.T) {
	srv := newFakeServer(t)
	c := srv.client()

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, "sess_1", c.SessionID())
	assert.NotEmpty(t, c.ConnectionID())

	upd := srv.waitType("session.update")
	assert.Regexp(t, `^evt_\d+_.{8}$`, upd["event_id"])
	session := upd["session"].(map[string]any)
	assert.Equal(t, "alloy", session["voice"])
	assert.Equal(t, "pcm16", session["input_audio_format"])
	assert.Equal(t, config.DefaultInstructions, session["instructions"])
	assert.Equal(t, "auto", session["tool_choice"])
	assert.NotContains(t, session, "tools")

	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyConnected)
}

func TestConnectRequiresKey(t *testing.T) {
	t.Setenv(ApiKeyEnvVarNameLong, "")
	t.Setenv(ApiKeyEnvVarNameShort, "")

	err := New().Connect(context.Background())
	assert.ErrorContains(t, err, "invalid config")
}

func TestConversationFromDeltas(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer(t)
	c, sc := connect(t, srv)

	var (
		mu  sync.Mutex
		seq []string
	)
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		seq = append(seq, s)
	}
	c.OnConversationUpdated(func(_ context.Context, u *ConversationUpdated) error {
		if u.Delta == nil {
			record("item:" + u.Item.ID)
		} else {
			record("delta:" + u.Delta.Text)
		}
		return nil
	})
	done := make(chan conversation.Item, 1)
	c.OnItemCompleted(func(_ context.Context, e *ItemCompleted) error {
		record("completed:" + e.Item.ID)
		done <- e.Item
		return nil
	})

	require.NoError(t, c.SendText(ctx, "Hello"))
	create := srv.waitType("conversation.item.create")
	item := create["item"].(map[string]any)
	assert.Equal(t, "user", item["role"])
	assert.Equal(t, "message", item["type"])
	srv.waitType("response.create")

	sc.send(itemCreated(map[string]any{
		"id": "item_user", "type": "message", "role": "user",
		"content": []any{map[string]any{"type": "input_text", "text": "Hello"}},
	}))
	sc.send(itemCreated(map[string]any{"id": "item_1", "type": "message", "role": "assistant", "status": "in_progress"}))
	for _, d := range []string{"Hi", " there", "!"} {
		sc.send(delta("response.text.delta", "item_1", d))
	}
	sc.send(itemDone(map[string]any{"id": "item_1", "type": "message", "role": "assistant", "status": "completed"}))

	it := waitFor(t, done)
	assert.Equal(t, "Hi there!", it.Formatted.Text)
	assert.Equal(t, conversation.StatusCompleted, it.Status)

	history := c.Conversation().History(0)
	require.Len(t, history, 2)
	assert.Equal(t, "Hello", history[0].Formatted.Text)
	assert.Equal(t, "Hi there!", history[1].Formatted.Text)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"item:item_user",
		"item:item_1",
		"delta:Hi",
		"delta: there",
		"delta:!",
		"completed:item_1",
	}, seq)

	sum := c.Services().Metrics.Summary()
	assert.Len(t, sum.ResponseTimes, 1)
}

func TestToolCallWithInvalidArguments(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer(t)
	c := srv.client()

	var calls atomic.Int32
	require.NoError(t, c.AddTool(ctx, getTimeDef(), func(context.Context, map[string]any) (any, error) {
		calls.Add(1)
		return map[string]any{"time": "12:00"}, nil
	}))
	require.NoError(t, c.Connect(ctx))
	sc := srv.conn()

	upd := srv.waitType("session.update")
	tools := upd["session"].(map[string]any)["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "get_time", tools[0].(map[string]any)["name"])

	call := functionCall("item_fc", "call_1", "get_time", "")
	call["status"] = "in_progress"
	sc.send(itemCreated(call))
	sc.send(map[string]any{
		"type": "response.function_call_arguments.delta", "event_id": "event_a",
		"item_id": "item_fc", "call_id": "call_1", "delta": "{bad json",
	})
	sc.send(itemDone(functionCall("item_fc", "call_1", "get_time", "{bad json")))

	out := srv.next()
	require.Equal(t, "conversation.item.create", out["type"])
	item := out["item"].(map[string]any)
	assert.Equal(t, "function_call_output", item["type"])
	assert.Equal(t, "call_1", item["call_id"])

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(item["output"].(string)), &res))
	assert.Contains(t, res["error"], "invalid arguments")

	assert.Equal(t, "response.create", srv.next()["type"])
	srv.expectNone(200 * time.Millisecond)
	assert.Zero(t, calls.Load())

	stored, ok := c.Conversation().Get("item_fc")
	require.True(t, ok)
	assert.Equal(t, "{bad json", stored.Formatted.Tool.Arguments)
	assert.Equal(t, 1, c.Services().Metrics.Summary().Errors["tool_arguments"])
}

// callTool lets the service call name with args and returns the tool output
// the client sent back.
func callTool(t *testing.T, h tool.Handler, name, args string, opts ...ClientOption) string {
	t.Helper()
	ctx := context.Background()
	srv := newFakeServer(t)
	c := srv.client(opts...)
	if h != nil {
		require.NoError(t, c.AddTool(ctx, getTimeDef(), h))
	}
	require.NoError(t, c.Connect(ctx))
	sc := srv.conn()
	srv.waitType("session.update")

	// announced only by the done event
	sc.send(itemDone(functionCall("item_fc", "call_1", name, args)))

	out := srv.next()
	require.Equal(t, "conversation.item.create", out["type"])
	item := out["item"].(map[string]any)
	assert.Equal(t, "function_call_output", item["type"])
	assert.Equal(t, "call_1", item["call_id"])
	assert.Equal(t, "response.create", srv.next()["type"])
	srv.expectNone(100 * time.Millisecond)

	return item["output"].(string)
}

func TestToolDispatchResults(t *testing.T) {
	tz := func(_ context.Context, args map[string]any) (any, error) {
		return map[string]any{"time": "12:00", "tz": args["tz"]}, nil
	}

	tests := []struct {
		name    string
		handler tool.Handler
		tool    string
		args    string
		opts    []ClientOption
		want    string
	}{
		{name: "result", handler: tz, tool: "get_time", args: `{"tz":"UTC"}`, want: `{"time":"12:00","tz":"UTC"}`},
		{name: "empty arguments", handler: tz, tool: "get_time", args: ``, want: `{"time":"12:00","tz":null}`},
		{
			name:    "nil result",
			handler: func(context.Context, map[string]any) (any, error) { return nil, nil },
			tool:    "get_time", args: `{}`,
			want: `{"success":true}`,
		},
		{
			name:    "handler error",
			handler: func(context.Context, map[string]any) (any, error) { return nil, errors.New("clock broken") },
			tool:    "get_time", args: `{}`,
			want: `{"error":"clock broken"}`,
		},
		{
			name:    "handler panic",
			handler: func(context.Context, map[string]any) (any, error) { panic("boom") },
			tool:    "get_time", args: `{}`,
			want: `{"error":"tool panicked: boom"}`,
		},
		{name: "unknown tool", handler: tz, tool: "nope", args: `{}`, want: `{"error":"unknown tool: nope"}`},
		{name: "not an object", handler: tz, tool: "get_time", args: `[1,2]`},
		{name: "repaired", handler: tz, tool: "get_time", args: `{"tz":"UTC"`, opts: []ClientOption{WithArgumentRepair()}, want: `{"time":"12:00","tz":"UTC"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := callTool(t, tt.handler, tt.tool, tt.args, tt.opts...)
			if tt.want == "" {
				assert.Contains(t, out, "invalid arguments")
				return
			}
			assert.JSONEq(t, tt.want, out)
		})
	}
}

func TestToolResultOfClosedConnectionIsDropped(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer(t)
	c := srv.client()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	c.MustAddTool(ctx, getTimeDef(), func(context.Context, map[string]any) (any, error) {
		started <- struct{}{}
		<-release
		return "late", nil
	})

	require.NoError(t, c.Connect(ctx))
	sc := srv.conn()
	srv.waitType("session.update")

	sc.send(itemDone(functionCall("item_fc", "call_1", "get_time", "{}")))
	waitFor(t, started)

	require.NoError(t, c.Disconnect(ctx))
	require.NoError(t, c.Connect(ctx))
	srv.conn()
	srv.waitType("session.update")

	close(release)
	srv.expectNone(200 * time.Millisecond)
}

func TestAddTool(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer(t)
	c := srv.client()

	first := tool.Func(func(map[string]any) any { return "first" })
	second := tool.Func(func(map[string]any) any { return "second" })

	// not connected: registered only
	require.NoError(t, c.AddTool(ctx, getTimeDef(), first))
	assert.ErrorIs(t, c.AddTool(ctx, getTimeDef(), second), tool.ErrDuplicate)
	assert.ErrorIs(t, c.AddTool(ctx, tool.Definition{}, second), tool.ErrMissingName)
	assert.Panics(t, func() { c.MustAddTool(ctx, getTimeDef(), second) })
	require.Len(t, c.Session().Tools, 1)

	require.NoError(t, c.Connect(ctx))
	srv.conn()
	upd := srv.waitType("session.update")
	assert.Len(t, upd["session"].(map[string]any)["tools"], 1)

	require.NoError(t, c.AddTool(ctx, tool.Definition{Name: "get_weather"}, first))
	upd = srv.next()
	require.Equal(t, "session.update", upd["type"])
	tools := upd["session"].(map[string]any)["tools"].([]any)
	require.Len(t, tools, 2)
	assert.Equal(t, "get_time", tools[0].(map[string]any)["name"])
	assert.Equal(t, "get_weather", tools[1].(map[string]any)["name"])

	out := callTool(t, nil, "get_time", "{}")
	assert.JSONEq(t, `{"error":"unknown tool: get_time"}`, out)
}

func TestWithToolsDuplicatePanics(t *testing.T) {
	h := tool.Func(func(map[string]any) any { return nil })
	assert.Panics(t, func() {
		New(WithTools(
			tool.Tool{Definition: getTimeDef(), Handler: h},
			tool.Tool{Definition: getTimeDef(), Handler: h},
		))
	})
}

func TestUpdateSessionConfig(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer(t)
	c := srv.client()

	require.NoError(t, c.UpdateSessionConfig(ctx, events.SessionConfig{Voice: "verse"}))
	assert.Equal(t, "verse", c.Session().Voice)

	require.NoError(t, c.Connect(ctx))
	srv.conn()
	upd := srv.waitType("session.update")
	assert.Equal(t, "verse", upd["session"].(map[string]any)["voice"])

	require.NoError(t, c.UpdateSessionConfig(ctx, events.SessionConfig{Temperature: 0.9}))
	upd = srv.waitType("session.update")
	session := upd["session"].(map[string]any)
	assert.Equal(t, "verse", session["voice"])
	assert.InDelta(t, 0.9, session["temperature"], 1e-9)
}

func TestUpdateSessionConfigDisablesTurnDetection(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer(t)
	c, _ := connect(t, srv)

	require.NoError(t, c.UpdateSessionConfig(ctx, events.SessionConfig{DisableTurnDetection: true}))
	session := srv.waitType("session.update")["session"].(map[string]any)
	require.Contains(t, session, "turn_detection")
	assert.Nil(t, session["turn_detection"])
	assert.Nil(t, c.Session().TurnDetection)
}

func TestSessionTimeout(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer(t, withoutSession())
	c := srv.client(WithSessionTimeout(100 * time.Millisecond))

	err := c.Connect(ctx)
	assert.ErrorIs(t, err, ErrSessionTimeout)
	assert.ErrorIs(t, err, emitter.ErrTimeout)
	assert.Equal(t, StateAwaitingSession, c.State())
	assert.Zero(t, c.Events().Len(TopicSessionCreated.Name()))

	require.NoError(t, c.Disconnect(ctx))
	assert.Equal(t, StateDisconnected, c.State())
}

func TestNotConnected(t *testing.T) {
	ctx := context.Background()
	c := New(WithKey("test"))

	assert.ErrorIs(t, c.SendText(ctx, "hi"), ErrNotConnected)
	assert.ErrorIs(t, c.CreateResponse(ctx), ErrNotConnected)
	assert.ErrorIs(t, c.CommitAudio(ctx), ErrNotConnected)
	assert.ErrorIs(t, c.SendAudio(ctx, []int16{1}), ErrNotConnected)
	assert.Zero(t, c.InputBuffered())
	assert.NoError(t, c.Disconnect(ctx))
}

func TestDisconnectTwice(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer(t)
	c, sc := connect(t, srv)

	added := make(chan struct{}, 1)
	c.OnConversationUpdated(func(context.Context, *ConversationUpdated) error {
		added <- struct{}{}
		return nil
	})
	sc.send(itemCreated(map[string]any{"id": "item_1", "type": "message", "role": "assistant"}))
	waitFor(t, added)
	require.NoError(t, c.SendAudio(ctx, []byte{1, 2}))

	require.NoError(t, c.Disconnect(ctx))
	require.NoError(t, c.Disconnect(ctx))

	assert.Equal(t, StateDisconnected, c.State())
	assert.Empty(t, c.SessionID())
	assert.Zero(t, c.Conversation().Len())
	assert.Zero(t, c.InputBuffered())
	assert.ErrorIs(t, c.SendText(ctx, "hi"), ErrNotConnected)
	assert.Len(t, c.Services().Metrics.Summary().SessionDurations, 1)
}

func TestRemoteClose(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer(t)
	c, sc := connect(t, srv)

	_ = sc.conn.Close()
	require.Eventually(t, func() bool { return c.State() == StateDisconnected }, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, c.SendText(ctx, "hi"), ErrNotConnected)

	require.NoError(t, c.Connect(ctx))
	srv.conn()
	srv.waitType("session.update")
	assert.Equal(t, StateReady, c.State())
}

func TestCommitAudio(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer(t)
	c, _ := connect(t, srv)

	// an empty buffer still asks for a response
	require.NoError(t, c.CommitAudio(ctx))
	assert.Equal(t, "response.create", srv.next()["type"])

	require.NoError(t, c.SendAudio(ctx, []int16{1, -1}))
	app := srv.next()
	require.Equal(t, "input_audio_buffer.append", app["type"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 0, 0xff, 0xff}), app["audio"])
	assert.Equal(t, 4, c.InputBuffered())

	require.NoError(t, c.CommitAudio(ctx))
	assert.Equal(t, "input_audio_buffer.commit", srv.next()["type"])
	assert.Equal(t, "response.create", srv.next()["type"])
	assert.Equal(t, []byte{1, 0, 0xff, 0xff}, c.Conversation().PendingAudio())
	assert.Zero(t, c.InputBuffered())

	require.NoError(t, c.SendAudio(ctx, []float32{}))
	require.NoError(t, c.SendAudio(ctx, "not audio"))
	srv.expectNone(50 * time.Millisecond)
}

func TestAudioWriter(t *testing.T) {
	srv := newFakeServer(t)
	c, _ := connect(t, srv)

	n, err := c.AudioWriter(ServiceSampleRate).Write([]byte{1, 0, 2, 0})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	app := srv.next()
	require.Equal(t, "input_audio_buffer.append", app["type"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 0, 2, 0}), app["audio"])

	_, err = c.AudioWriter(48_000).Write(make([]byte, 960))
	require.NoError(t, err)
	assert.Equal(t, "input_audio_buffer.append", srv.next()["type"])
}

func TestAudioDeltaAndInterruption(t *testing.T) {
	srv := newFakeServer(t)
	c, sc := connect(t, srv, WithPlayback(ServiceSampleRate, 10*time.Millisecond))

	audioDeltas := make(chan []byte, 1)
	c.OnConversationUpdated(func(_ context.Context, u *ConversationUpdated) error {
		if u.Delta != nil && u.Delta.Audio != nil {
			audioDeltas <- u.Delta.Audio
		}
		return nil
	})
	interrupted := make(chan *events.SpeechStartedEvent, 1)
	c.OnInterrupted(func(_ context.Context, e *events.SpeechStartedEvent) error {
		interrupted <- e
		return nil
	})

	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	sc.send(itemCreated(map[string]any{"id": "item_a", "type": "message", "role": "assistant"}))
	sc.send(delta("response.audio.delta", "item_a", base64.StdEncoding.EncodeToString(pcm)))

	assert.Equal(t, pcm, waitFor(t, audioDeltas))
	assert.Equal(t, len(pcm), c.Playback().Buffered())

	sc.send(map[string]any{"type": "input_audio_buffer.speech_started", "event_id": "event_s", "audio_start_ms": 120, "item_id": "item_u"})
	e := waitFor(t, interrupted)
	assert.Equal(t, 120, e.AudioStartMs)
	assert.Zero(t, c.Playback().Buffered())

	it, ok := c.Conversation().Get("item_a")
	require.True(t, ok)
	assert.Equal(t, pcm, it.Formatted.AudioBytes())
	assert.Equal(t, 1, c.Services().Metrics.Summary().AudioChunksProcessed)
}

func TestAudioDeltaDoesNotAliasConversation(t *testing.T) {
	srv := newFakeServer(t)
	c, sc := connect(t, srv)

	seen := make(chan struct{}, 1)
	c.OnConversationUpdated(func(_ context.Context, u *ConversationUpdated) error {
		if u.Delta != nil && u.Delta.Audio != nil {
			u.Delta.Audio[0] = 0xEE
			u.Item.Formatted.Audio[0][1] = 0xEE
			seen <- struct{}{}
		}
		return nil
	})

	sc.send(itemCreated(map[string]any{"id": "item_1", "type": "message", "role": "assistant"}))
	sc.send(delta("response.audio.delta", "item_1", base64.StdEncoding.EncodeToString([]byte{1, 2})))
	waitFor(t, seen)

	it, ok := c.Conversation().Get("item_1")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2}, it.Formatted.Audio[0])
}

func TestPlaybackRead(t *testing.T) {
	p := newPlayback(ServiceSampleRate, 10*time.Millisecond, slog.New(slog.DiscardHandler))
	require.Equal(t, 480, p.ChunkSize())

	p.write(make([]byte, 960))
	buf := make([]byte, p.ChunkSize())

	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 480, n)

	require.NoError(t, p.Close())
	n, err = p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 480, n)

	_, err = p.Read(buf)
	assert.Error(t, err)
}

func TestServiceError(t *testing.T) {
	srv := newFakeServer(t)
	c, sc := connect(t, srv)

	errs := make(chan *events.ErrorEvent, 1)
	c.OnError(func(_ context.Context, e *events.ErrorEvent) error {
		errs <- e
		return nil
	})

	sc.send(map[string]any{
		"type": "error", "event_id": "event_e",
		"error": map[string]any{"type": "invalid_request_error", "code": "invalid_value", "message": "bad"},
	})
	e := waitFor(t, errs)
	assert.EqualError(t, e, "invalid_value: bad")
	assert.Equal(t, 1, c.Services().Metrics.Summary().Errors["realtime_api_invalid_value"])
}

func TestRawEventStream(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer(t)
	c, sc := connect(t, srv)

	all := make(chan events.Type, 10)
	c.OnServerEvent(func(_ context.Context, e *events.ServerEvent) error {
		all <- e.Type
		return nil
	})
	typed := make(chan string, 1)
	emitter.On(c.Events(), ServerEventTopic("rate_limits.updated"), func(_ context.Context, e *events.ServerEvent) error {
		typed <- e.EventID
		return nil
	})
	sent := make(chan events.Type, 1)
	emitter.On(c.Events(), ClientEventTopic(events.TypeResponseCreate), func(_ context.Context, e events.ClientEvent) error {
		sent <- e.Base().Type
		return nil
	})

	sc.sendRaw([]byte("not json"))
	sc.sendRaw([]byte(`{"no_type":true}`))
	sc.send(map[string]any{"type": "rate_limits.updated", "event_id": "event_r"})

	assert.Equal(t, events.Type("rate_limits.updated"), waitFor(t, all))
	assert.Equal(t, "event_r", waitFor(t, typed))
	assert.Equal(t, 2, c.Services().Metrics.Summary().Errors["protocol"])

	require.NoError(t, c.CreateResponse(ctx))
	assert.Equal(t, events.TypeResponseCreate, waitFor(t, sent))
}

func TestConnectWithRetry(t *testing.T) {
	srv := newFakeServer(t, rejectFirst(2))
	c := srv.client()

	require.NoError(t, c.ConnectWithRetry(context.Background()))
	assert.Equal(t, StateReady, c.State())

	sum := c.Services().Metrics.Summary()
	assert.Equal(t, 3, sum.ConnectionAttempts)
	assert.Equal(t, 1, sum.ConnectionSuccesses)
	assert.Equal(t, 2, sum.ConnectionFailures)
	assert.Equal(t, map[string]int{"transport": 2}, c.Services().Retry.Stats())
}

func TestConnectWithRetryExhausted(t *testing.T) {
	srv := newFakeServer(t, rejectFirst(10))
	c := srv.client()

	err := c.ConnectWithRetry(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, 3, c.Services().Metrics.Summary().ConnectionFailures)
}

func TestConnectWithRetryInvalidConfig(t *testing.T) {
	t.Setenv(ApiKeyEnvVarNameLong, "")
	t.Setenv(ApiKeyEnvVarNameShort, "")

	c := New(WithURL("ws://127.0.0.1:1"), WithServices(NewServices(3, time.Hour, nil)))

	err := c.ConnectWithRetry(context.Background())
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, map[string]int{"config": 1}, c.Services().Retry.Stats())
	assert.Equal(t, 1, c.Services().Metrics.Summary().ConnectionFailures)
}

func TestConnectWithRetryWhenConnected(t *testing.T) {
	srv := newFakeServer(t)
	c, _ := connect(t, srv, WithServices(NewServices(3, time.Hour, nil)))
	before := c.Services().Metrics.Summary()

	err := c.ConnectWithRetry(context.Background())
	require.ErrorIs(t, err, ErrAlreadyConnected)
	assert.Equal(t, StateReady, c.State())

	after := c.Services().Metrics.Summary()
	assert.Equal(t, before.ConnectionAttempts, after.ConnectionAttempts)
	assert.Zero(t, after.ConnectionFailures)
}

func TestConnectionDroppedBeforeSession(t *testing.T) {
	srv := newFakeServer(t, dropBeforeSession())
	c := srv.client(WithSessionTimeout(10 * time.Second))

	start := time.Now()
	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnectionClosed)
	assert.NotErrorIs(t, err, ErrSessionTimeout)
	assert.Equal(t, "transport", retry.Category(err))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConnectWithRetryDroppedBeforeSession(t *testing.T) {
	srv := newFakeServer(t, dropBeforeSession())
	c := srv.client(WithSessionTimeout(10 * time.Second))

	start := time.Now()
	err := c.ConnectWithRetry(context.Background())
	require.ErrorIs(t, err, ErrConnectionClosed)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, map[string]int{"transport": 3}, c.Services().Retry.Stats())
}

func TestAddToolWhileSessionIsPublished(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer(t)
	c := srv.client()

	var once sync.Once
	emitter.On(c.Events(), ClientEventTopic(events.TypeSessionUpdate), func(ctx context.Context, _ events.ClientEvent) error {
		once.Do(func() {
			assert.Equal(t, StateAwaitingSession, c.State())
			assert.NoError(t, c.AddTool(ctx, getTimeDef(), tool.Func(func(map[string]any) any { return nil })))
		})
		return nil
	})

	require.NoError(t, c.Connect(ctx))
	srv.conn()

	first := srv.waitType("session.update")
	assert.NotContains(t, first["session"], "tools")

	second := srv.waitType("session.update")
	tools := second["session"].(map[string]any)["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "get_time", tools[0].(map[string]any)["name"])
}

func TestWithConfig(t *testing.T) {
	cfg := &config.Config{
		UseAzure: true,
		Azure: config.Azure{
			Endpoint:   "example.openai.azure.com",
			APIKey:     "az-key",
			Deployment: "rt",
			APIVersion: "2024-10-01-preview",
		},
		BaseURL:        "wss://example.openai.azure.com/openai/realtime",
		SessionTimeout: 3 * time.Second,
		MaxRetries:     5,
		RetryDelay:     time.Millisecond,
		Session:        events.SessionConfig{Voice: "verse"},
	}

	c := New(WithConfig(cfg))
	require.NoError(t, c.config.validate())
	assert.Equal(t, "az-key", c.config.handshakeHeaders().Get("api-key"))
	assert.Contains(t, c.config.endpoint(), "deployment=rt")
	assert.Equal(t, 3*time.Second, c.config.sessionTimeout)
	assert.Equal(t, "verse", c.Session().Voice)
	assert.Equal(t, config.DefaultInstructions, c.Session().Instructions)
}

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codewandler/realtime-go/conversation"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/tool"
	"github.com/kaptinlin/jsonrepair"
)

// dispatch answers a completed function call on its own goroutine. Results of
// calls from a previous connection are dropped.
func (c *Client) dispatch(gen uint64, it conversation.Item) {
	call := conversation.ToolCall{CallID: it.CallID, Name: it.Name}
	if it.Formatted.Tool != nil {
		call = *it.Formatted.Tool
	}
	if call.CallID == "" {
		call.CallID = it.CallID
	}

	logger := c.logger.With(
		slog.String("call_id", call.CallID),
		slog.String("tool", call.Name),
	)

	go func() {
		ctx := context.Background()
		output := c.runTool(ctx, logger, call)

		if !c.isGeneration(gen) {
			logger.Info("dropping tool result of closed connection")
			return
		}

		err := c.Send(ctx, events.NewConversationItemCreate(events.Item{
			Type:   events.ItemTypeFunctionCallOutput,
			CallID: call.CallID,
			Output: output,
		}))
		if err != nil {
			logger.Error("failed to send tool result", slog.Any("err", err))
			return
		}
		if err := c.CreateResponse(ctx); err != nil {
			logger.Error("failed to request response after tool call", slog.Any("err", err))
		}
	}()
}

func (c *Client) runTool(ctx context.Context, logger *slog.Logger, call conversation.ToolCall) string {
	t, ok := c.tools.Get(call.Name)
	if !ok {
		c.services.Metrics.RecordError("tool_unknown")
		logger.Warn("unknown tool")
		return toolError("unknown tool: " + call.Name)
	}

	args, err := c.parseArguments(call.Arguments)
	if err != nil {
		c.services.Metrics.RecordError("tool_arguments")
		logger.Warn("invalid tool arguments", slog.Any("err", err))
		return toolError("invalid arguments: " + err.Error())
	}

	res, err := invoke(ctx, t.Handler, args)
	logger.Debug("tool call", slog.Any("args", args), slog.Any("res", res), slog.Any("err", err))
	if err != nil {
		c.services.Metrics.RecordError("tool_handler")
		return toolError(err.Error())
	}

	if res == nil {
		d, _ := json.Marshal(map[string]any{"success": true})
		return string(d)
	}
	d, err := json.Marshal(res)
	if err != nil {
		return toolError("encode result: " + err.Error())
	}
	return string(d)
}

func (c *Client) parseArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}

	err := json.Unmarshal([]byte(raw), &args)
	if err != nil && c.config.repairArguments {
		fixed, rerr := jsonrepair.JSONRepair(raw)
		if rerr == nil {
			args = map[string]any{}
			err = json.Unmarshal([]byte(fixed), &args)
		}
	}
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func invoke(ctx context.Context, h tool.Handler, args map[string]any) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return h(ctx, args)
}

func toolError(msg string) string {
	d, _ := json.Marshal(map[string]any{"error": msg})
	return string(d)
}

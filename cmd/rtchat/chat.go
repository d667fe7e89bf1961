package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	realtime "github.com/codewandler/realtime-go"
	"github.com/codewandler/realtime-go/events"
	"github.com/spf13/cobra"
)

func newChatCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Text chat; /stats prints metrics, /quit exits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, _, err := flags.newClient()
			if err != nil {
				return err
			}
			if err := client.UpdateSessionConfig(ctx, events.SessionConfig{Modalities: []string{"text"}}); err != nil {
				return err
			}

			return runChat(ctx, client, flags.retry, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func connect(ctx context.Context, client *realtime.Client, retry bool) error {
	if retry {
		return client.ConnectWithRetry(ctx)
	}
	return client.Connect(ctx)
}

func runChat(ctx context.Context, client *realtime.Client, retry bool, in io.Reader, out io.Writer) error {
	s := newStyles()
	turnDone := make(chan struct{}, 1)

	client.OnConversationUpdated(func(_ context.Context, u *realtime.ConversationUpdated) error {
		if u.Delta == nil || u.Item.Role != events.RoleAssistant {
			return nil
		}
		if d := u.Delta.Text + u.Delta.Transcript; d != "" {
			_, _ = fmt.Fprint(out, s.assistant.Render(d))
		}
		return nil
	})
	client.OnItemCompleted(func(_ context.Context, e *realtime.ItemCompleted) error {
		switch {
		case e.Item.Type == events.ItemTypeFunctionCall && e.Item.Formatted.Tool != nil:
			_, _ = fmt.Fprintln(out, s.tool.Render(fmt.Sprintf("[%s %s]", e.Item.Formatted.Tool.Name, e.Item.Formatted.Tool.Arguments)))
		case e.Item.Role == events.RoleAssistant:
			_, _ = fmt.Fprintln(out)
			select {
			case turnDone <- struct{}{}:
			default:
			}
		}
		return nil
	})
	client.OnError(func(_ context.Context, e *events.ErrorEvent) error {
		_, _ = fmt.Fprintln(out, s.err.Render("error: "+e.Error()))
		return nil
	})

	if err := connect(ctx, client, retry); err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	_, _ = fmt.Fprintln(out, s.dim.Render("connected, session "+client.SessionID()))

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		_, _ = fmt.Fprint(out, s.prompt.Render("you> "))

		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/quit":
			return nil
		case "/stats":
			printStats(out, s, client)
			continue
		}

		if err := client.SendText(ctx, line); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-turnDone:
		}
	}
}

func printStats(out io.Writer, s styles, client *realtime.Client) {
	sum := client.Services().Metrics.Summary()
	_, _ = fmt.Fprintln(out, s.dim.Render(fmt.Sprintf(
		"uptime %s, sent %d, received %d, avg response %s, errors %v",
		sum.Uptime.Round(time.Millisecond), sum.MessagesSent, sum.MessagesReceived, sum.AverageResponseTime, sum.Errors,
	)))
}

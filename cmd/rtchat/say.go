package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	realtime "github.com/codewandler/realtime-go"
	"github.com/codewandler/realtime-go/audio"
	"github.com/codewandler/realtime-go/events"
	"github.com/spf13/cobra"
)

type sayFlags struct {
	in      string
	out     string
	rate    int
	outRate int
	timeout time.Duration
}

func newSayCmd(flags *globalFlags) *cobra.Command {
	f := &sayFlags{}

	cmd := &cobra.Command{
		Use:   "say",
		Short: "Send a mono PCM16 recording and save the spoken reply as PCM16",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSay(ctx, flags, f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&f.in, "in", "", "input file, raw mono PCM16 little endian")
	cmd.Flags().StringVar(&f.out, "out", "reply.pcm", "output file for the reply audio")
	cmd.Flags().IntVar(&f.rate, "rate", realtime.ServiceSampleRate, "sample rate of the input file")
	cmd.Flags().IntVar(&f.outRate, "out-rate", realtime.ServiceSampleRate, "sample rate of the output file")
	cmd.Flags().DurationVar(&f.timeout, "timeout", time.Minute, "how long to wait for the reply")
	_ = cmd.MarkFlagRequired("in")

	return cmd
}

func runSay(ctx context.Context, flags *globalFlags, f *sayFlags, out io.Writer) error {
	s := newStyles()

	in, err := os.Open(f.in)
	if err != nil {
		return err
	}
	defer in.Close()

	dst, err := os.Create(f.out)
	if err != nil {
		return err
	}
	defer dst.Close()

	client, _, err := flags.newClient(realtime.WithPlayback(f.outRate, 100*time.Millisecond))
	if err != nil {
		return err
	}

	replied := make(chan struct{}, 1)
	client.OnItemCompleted(func(_ context.Context, e *realtime.ItemCompleted) error {
		if e.Item.Role != events.RoleAssistant {
			return nil
		}
		if e.Item.Formatted.Transcript != "" {
			_, _ = fmt.Fprintln(out, s.assistant.Render(e.Item.Formatted.Transcript))
		}
		select {
		case replied <- struct{}{}:
		default:
		}
		return nil
	})

	if err := connect(ctx, client, flags.retry); err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	// drain playback into the output file until the stream is closed
	playback := client.Playback()
	copied := make(chan error, 1)
	go func() {
		buf := make([]byte, playback.ChunkSize())
		for {
			n, err := playback.Read(buf)
			if n > 0 {
				if _, werr := dst.Write(buf[:n]); werr != nil {
					copied <- werr
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				copied <- err
				return
			}
		}
	}()

	chunks := audio.NewLatencyChunkReader(in, f.rate, 100*time.Millisecond)
	buf := make([]byte, chunks.ChunkSize())
	w := client.AudioWriter(f.rate)
	for {
		n, err := chunks.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
	}
	if err := client.CommitAudio(ctx); err != nil {
		return err
	}

	select {
	case <-replied:
	case <-time.After(f.timeout):
		return fmt.Errorf("no reply within %s", f.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	_ = playback.Close()
	if err := <-copied; err != nil {
		return err
	}

	_, _ = fmt.Fprintln(out, s.dim.Render(fmt.Sprintf("reply written to %s (%s)", f.out, audio.Duration(playbackBytes(dst), f.outRate))))
	return nil
}

func playbackBytes(f *os.File) int {
	st, err := f.Stat()
	if err != nil {
		return 0
	}
	return int(st.Size())
}

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

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/AbNAt-Cell/NoteTaker/audio"
	"github.com/AbNAt-Cell/NoteTaker/segment"
	"github.com/AbNAt-Cell/NoteTaker/sink"
	"github.com/AbNAt-Cell/NoteTaker/stt"
)

var streamCmd = &cobra.Command{
	Use:   "stream [file.pcm]",
	Short: "Transcribe raw 16 kHz mono PCM from a file or stdin",
	Args:  cobra.MaximumNArgs(1),
	Run:   runStream,
}

func init() {
	streamCmd.Flags().Bool("reactive", false, "Use the single event loop instead of background workers")
	streamCmd.Flags().Bool("realtime", true, "Pace audio at real time")
	streamCmd.Flags().Duration("chunk", 100*time.Millisecond, "Audio per write")
	streamCmd.Flags().String("uid", "", "Stream uid (random by default)")
	streamCmd.Flags().String("meeting", "", "Meeting id attached to published segments")
}

type streamSink interface {
	send(chunk []byte) error
	close()
}

type workerSink struct{ w *stt.Worker }

func (s workerSink) send(chunk []byte) error {
	select {
	case <-s.w.Failed():
		return s.w.Err()
	default:
	}
	_, err := s.w.Write(chunk)
	return err
}

func (s workerSink) close() { s.w.Stop() }

type reactiveSink struct {
	r       *stt.Reactive
	fatal   chan error
	dropped int
}

func (s *reactiveSink) send(chunk []byte) error {
	select {
	case err := <-s.fatal:
		return err
	default:
	}
	if !s.r.SendAudio(chunk) {
		s.dropped++
	}
	return nil
}

func (s *reactiveSink) close() {
	s.r.Close()
	if s.dropped > 0 {
		logger.Warn("audio sent while disconnected was dropped", "chunks", s.dropped)
	}
}

func runStream(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	reactive, _ := cmd.Flags().GetBool("reactive")
	realtime, _ := cmd.Flags().GetBool("realtime")
	chunk, _ := cmd.Flags().GetDuration("chunk")
	uid, _ := cmd.Flags().GetString("uid")
	meeting, _ := cmd.Flags().GetString("meeting")
	if uid == "" {
		uid = uuid.NewString()
	}

	var in io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			logger.Fatal("open audio", "error", err)
		}
		defer f.Close()
		in = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	filter, err := newFilter(cfg)
	if err != nil {
		logger.Fatal("load filter", "error", err)
	}
	publisher, cleanup, err := newPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("connect downstream", "error", err)
	}
	defer cleanup()

	meta := stt.Metadata{UID: uid, MeetingID: meeting, Platform: "cli", Language: cfg.Language}
	stream := stt.NewStream(
		meta,
		filter,
		publisher.With(sink.NewConsole(os.Stdout)),
		logger.WithPrefix("hear"),
	)

	out, err := openStream(ctx, cfg.Worker(), reactive, stream, newProvider(cfg))
	if err != nil {
		logger.Fatal("start stream", "error", err)
	}

	err = forEachChunk(in, audio.Bytes(chunk), func(pcm []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := out.send(pcm); err != nil {
			return err
		}
		if realtime {
			time.Sleep(audio.Duration(pcm))
		}
		return nil
	})
	out.close()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stream", "error", err)
	}

	printSummary(os.Stdout, stream.History())
}

func openStream(
	ctx context.Context,
	wc stt.WorkerConfig,
	reactive bool,
	stream *stt.Stream,
	provider stt.Provider,
) (streamSink, error) {
	if !reactive {
		w := stt.NewWorker(stream, provider, wc, logger.WithPrefix("main"))
		if err := w.Start(ctx); err != nil {
			return nil, err
		}
		return workerSink{w: w}, nil
	}

	r := stt.NewReactive(stream, provider, wc.Policy, wc.Backoff, nil, logger.WithPrefix("main"))
	s := &reactiveSink{r: r, fatal: make(chan error, 1)}
	r.OnFatal = func(err error) {
		select {
		case s.fatal <- err:
		default:
		}
	}
	r.Connect(ctx)

	deadline := time.After(10 * time.Second)
	for !r.IsOpen() {
		select {
		case err := <-s.fatal:
			r.Close()
			return nil, err
		case <-deadline:
			r.Close()
			return nil, errors.New("timed out connecting to provider")
		case <-time.After(20 * time.Millisecond):
		}
	}
	return s, nil
}

// forEachChunk reads r in pieces of size bytes and calls f for each;
// the last piece may be shorter.
func forEachChunk(r io.Reader, size int, f func([]byte) error) error {
	if size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", size)
	}
	buf := make([]byte, size)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if ferr := f(chunk); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func printSummary(w io.Writer, history []segment.Segment) {
	if len(history) == 0 {
		fmt.Fprintln(w, "No segments.")
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Start", "End", "Speaker", "Text"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	for _, seg := range history {
		table.Append([]string{seg.Start, seg.End, seg.Speaker, seg.Text})
	}
	table.Render()
}

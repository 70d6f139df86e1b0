// Package loop runs the conversation pipeline: microphone frames stream to
// the live session while a segmenter groups them into user turns, camera
// frames tick in alongside, and the session's synthesized audio plays back
// through the speaker. Completed turns from both sides are handed to the
// transcript logger.
package loop

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tsubasakt/kaiwa/internal/observe"
	"github.com/tsubasakt/kaiwa/internal/transcript"
	"github.com/tsubasakt/kaiwa/pkg/audio"
	"github.com/tsubasakt/kaiwa/pkg/camera"
	"github.com/tsubasakt/kaiwa/pkg/provider/live"
)

// Defaults for the loop's tunables.
const (
	// DefaultFrameInterval is how often a camera frame is sent.
	DefaultFrameInterval = 2 * time.Second

	// DefaultReceiveSampleRate is the sample rate of audio the session
	// streams back.
	DefaultReceiveSampleRate = 24000

	// outboundQueueSize bounds buffered outbound messages so a stalled
	// session connection applies backpressure to capture.
	outboundQueueSize = 5

	playbackQueueSize = 64
	turnQueueSize     = 16
)

// quitCommand typed on stdin ends the conversation.
const quitCommand = "q"

// errQuit signals a user-requested shutdown through the errgroup. Run maps
// it to a nil return.
var errQuit = errors.New("loop: quit requested")

// FrameReader produces captured microphone frames. Implemented by
// device.CaptureStream.
type FrameReader interface {
	ReadFrame(ctx context.Context) (audio.AudioFrame, error)
}

// Player consumes PCM for the speaker. Implemented by device.PlaybackStream.
type Player interface {
	Write(ctx context.Context, pcm []byte) error
}

// TurnLogger persists completed turns. Implemented by transcript.Logger.
type TurnLogger interface {
	LogTurn(ctx context.Context, t transcript.Turn) error
}

// Config assembles the loop's collaborators. Session, Mic and Speaker are
// required; the rest have working defaults or degrade gracefully when absent.
type Config struct {
	Session live.SessionHandle
	Mic     FrameReader
	Speaker Player

	// Camera is optional. When nil the loop runs voice-only.
	Camera camera.Source

	// Logger is optional. When nil turns are not persisted.
	Logger TurnLogger

	// Input is the command stream, normally os.Stdin. Lines are sent to the
	// session as text turns; the quit command ends the loop.
	Input io.Reader

	// FrameInterval overrides how often camera frames are sent.
	FrameInterval time.Duration

	// ReceiveSampleRate overrides the sample rate assumed for session audio.
	ReceiveSampleRate int

	Log     *slog.Logger
	Metrics *observe.Metrics

	// SegmenterOptions tune turn segmentation.
	SegmenterOptions []SegmenterOption
}

// Loop is the running conversation pipeline. Create with New, drive with Run.
type Loop struct {
	session live.SessionHandle
	mic     FrameReader
	speaker Player
	cam     camera.Source
	logger  TurnLogger
	input   io.Reader

	frameInterval time.Duration
	receiveRate   int

	log     *slog.Logger
	metrics *observe.Metrics
	seg     *Segmenter

	outCh  chan live.OutboundMessage
	playCh chan []byte
	turnCh chan transcript.Turn

	// systemSpeaking gates capture: while the assistant's audio is playing,
	// microphone frames are discarded so the agent does not hear itself.
	systemSpeaking atomic.Bool
}

// New validates cfg and builds a Loop.
func New(cfg Config) (*Loop, error) {
	if cfg.Session == nil {
		return nil, fmt.Errorf("loop: session is required")
	}
	if cfg.Mic == nil {
		return nil, fmt.Errorf("loop: mic is required")
	}
	if cfg.Speaker == nil {
		return nil, fmt.Errorf("loop: speaker is required")
	}

	l := &Loop{
		session:       cfg.Session,
		mic:           cfg.Mic,
		speaker:       cfg.Speaker,
		cam:           cfg.Camera,
		logger:        cfg.Logger,
		input:         cfg.Input,
		frameInterval: cfg.FrameInterval,
		receiveRate:   cfg.ReceiveSampleRate,
		log:           cfg.Log,
		metrics:       cfg.Metrics,
		seg:           NewSegmenter(cfg.SegmenterOptions...),
		outCh:         make(chan live.OutboundMessage, outboundQueueSize),
		playCh:        make(chan []byte, playbackQueueSize),
		turnCh:        make(chan transcript.Turn, turnQueueSize),
	}
	if l.input == nil {
		l.input = os.Stdin
	}
	if l.frameInterval <= 0 {
		l.frameInterval = DefaultFrameInterval
	}
	if l.receiveRate <= 0 {
		l.receiveRate = DefaultReceiveSampleRate
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	return l, nil
}

// Run drives the pipeline until the context is cancelled, the user quits, or
// a worker fails. A user quit returns nil.
func (l *Loop) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return l.commandWorker(ctx) })
	g.Go(func() error { return l.captureWorker(ctx) })
	g.Go(func() error { return l.sendWorker(ctx) })
	g.Go(func() error { return l.receiveWorker(ctx) })
	g.Go(func() error { return l.playbackWorker(ctx) })
	g.Go(func() error { return l.logWorker(ctx) })
	if l.cam != nil {
		g.Go(func() error { return l.cameraWorker(ctx) })
	}

	err := g.Wait()
	if errors.Is(err, errQuit) {
		return nil
	}
	return err
}

// send queues one outbound message, blocking while the queue is full.
func (l *Loop) send(ctx context.Context, msg live.OutboundMessage) error {
	select {
	case l.outCh <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// commandWorker turns stdin lines into text turns and watches for the quit
// command. The raw scan runs in its own goroutine so a blocked stdin read
// cannot hold up shutdown.
func (l *Loop) commandWorker(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(l.input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// Input closed; keep the conversation running on voice.
				return nil
			}
			if line == quitCommand {
				l.log.Info("quit requested")
				return errQuit
			}
			if line == "" {
				continue
			}
			if err := l.send(ctx, live.TextTurn(line)); err != nil {
				return nil
			}
		}
	}
}

// captureWorker streams microphone frames to the session and feeds the
// segmenter. While the assistant is speaking, frames are discarded (they
// would mostly contain the assistant's own voice) and any accumulating user
// turn is closed right away as an interruption.
func (l *Loop) captureWorker(ctx context.Context) error {
	defer func() {
		// A turn still open at shutdown is worth keeping.
		if turn := l.seg.Flush(); turn != nil {
			select {
			case l.turnCh <- *turn:
			default:
			}
		}
	}()

	for {
		frame, err := l.mic.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("loop: read microphone: %w", err)
		}

		if l.systemSpeaking.Load() {
			if turn := l.seg.Flush(); turn != nil {
				l.enqueueTurn(ctx, *turn)
			}
			l.metrics.RecordFrame(ctx, "discarded")
			continue
		}
		l.metrics.RecordFrame(ctx, "sent")

		if err := l.send(ctx, live.AudioChunk(frame.Data)); err != nil {
			return nil
		}
		if turn := l.seg.Push(frame); turn != nil {
			l.enqueueTurn(ctx, *turn)
		}
	}
}

// cameraWorker sends a camera frame every frame interval. Capture failures
// put the loop in a degraded voice-only state that recovers on the next good
// frame.
func (l *Loop) cameraWorker(ctx context.Context) error {
	ticker := time.NewTicker(l.frameInterval)
	defer ticker.Stop()

	degraded := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			frame, err := l.cam.Capture(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if !degraded {
					l.log.Warn("camera capture failed, continuing voice-only", "error", err)
					degraded = true
				}
				l.metrics.RecordPipelineError(ctx, "camera")
				continue
			}
			if degraded {
				l.log.Info("camera recovered")
				degraded = false
			}
			if err := l.send(ctx, live.ImageChunk(frame.MIMEType, frame.Data)); err != nil {
				return nil
			}
			l.metrics.CameraFrames.Add(ctx, 1)
		}
	}
}

// sendWorker is the only goroutine that writes to the session.
func (l *Loop) sendWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-l.outCh:
			if err := l.session.Send(msg); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("loop: send to session: %w", err)
			}
		}
	}
}

// receiveWorker consumes session events: audio goes to the playback queue and
// accumulates into the assistant's turn, turn boundaries flush that turn to
// the transcript queue and drop whatever playback is still pending.
func (l *Loop) receiveWorker(ctx context.Context) error {
	var sysBuf []byte

	flushSystemTurn := func() {
		if len(sysBuf) > 0 && !audio.IsSilence(sysBuf) {
			l.enqueueTurn(ctx, transcript.Turn{
				Speaker:    transcript.SpeakerSystem,
				PCM:        sysBuf,
				SampleRate: l.receiveRate,
				Channels:   1,
			})
		}
		sysBuf = nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-l.session.Events():
			if !ok {
				if err := l.session.Err(); err != nil {
					return fmt.Errorf("loop: session terminated: %w", err)
				}
				return errQuit
			}

			switch ev.Type {
			case live.EventAudio:
				l.systemSpeaking.Store(true)
				sysBuf = append(sysBuf, ev.Audio...)
				select {
				case l.playCh <- ev.Audio:
					l.metrics.PlaybackBacklog.Add(ctx, 1)
				case <-ctx.Done():
					return nil
				}

			case live.EventText:
				l.log.Debug("session text", "text", ev.Text)

			case live.EventInterrupted:
				l.metrics.Interruptions.Add(ctx, 1)
				sysBuf = nil
				l.drainPlayback(ctx)
				l.systemSpeaking.Store(false)

			case live.EventTurnComplete:
				flushSystemTurn()
				l.drainPlayback(ctx)
				l.systemSpeaking.Store(false)
			}
		}
	}
}

// drainPlayback discards queued playback chunks without blocking. Chunks
// already handed to the device keep playing.
func (l *Loop) drainPlayback(ctx context.Context) {
	for {
		select {
		case <-l.playCh:
			l.metrics.PlaybackBacklog.Add(ctx, -1)
		default:
			return
		}
	}
}

// playbackWorker feeds the speaker from the playback queue.
func (l *Loop) playbackWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case pcm := <-l.playCh:
			l.metrics.PlaybackBacklog.Add(ctx, -1)
			if err := l.speaker.Write(ctx, pcm); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("loop: play audio: %w", err)
			}
		}
	}
}

// enqueueTurn records turn metrics and queues the turn for logging. When the
// queue is full the turn is dropped with a warning rather than stalling the
// audio path.
func (l *Loop) enqueueTurn(ctx context.Context, t transcript.Turn) {
	l.metrics.RecordTurn(ctx, string(t.Speaker), t.Duration().Seconds())
	select {
	case l.turnCh <- t:
	default:
		l.log.Warn("transcript queue full, dropping turn",
			"speaker", t.Speaker, "duration", t.Duration())
		l.metrics.RecordPipelineError(ctx, "transcript_queue")
	}
}

// logWorker persists queued turns. Logging failures never stop the
// conversation; they are reported and counted. On shutdown the queue is
// drained so a turn in flight still lands.
func (l *Loop) logWorker(ctx context.Context) error {
	for {
		select {
		case turn := <-l.turnCh:
			l.logTurn(ctx, turn)
		case <-ctx.Done():
			drainCtx := context.WithoutCancel(ctx)
			for {
				select {
				case turn := <-l.turnCh:
					l.logTurn(drainCtx, turn)
				default:
					return nil
				}
			}
		}
	}
}

func (l *Loop) logTurn(ctx context.Context, t transcript.Turn) {
	if l.logger == nil {
		return
	}
	if err := l.logger.LogTurn(ctx, t); err != nil {
		l.log.Error("log turn", "speaker", t.Speaker, "error", err)
		l.metrics.RecordPipelineError(ctx, "transcript")
	}
}

package bridge

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/danmuck/edgebridge/internal/protocol/command"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	maxConsoleLine    = 64 * 1024
	maxRejectedPrefix = 64
)

// ConsoleLoop reads operator lines and broadcasts the formatted commands.
type ConsoleLoop struct {
	in       io.Reader
	registry *Registry
	recorder Recorder
	logger   zerolog.Logger
}

func NewConsoleLoop(in io.Reader, registry *Registry, recorder Recorder) *ConsoleLoop {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &ConsoleLoop{
		in:       in,
		registry: registry,
		recorder: recorder,
		logger:   log.With().Str("component", "console").Logger(),
	}
}

// Run consumes lines until end of input (returns nil), a read failure
// (returned), or ctx cancellation between lines. A line longer than
// maxConsoleLine is rejected and skipped.
func (l *ConsoleLoop) Run(ctx context.Context) error {
	rd := bufio.NewReaderSize(l.in, 4096)
	l.logger.Info().Msg("type commands to send to connected devices")
	for {
		line, size, err := readConsoleLine(rd)
		if errors.Is(err, io.EOF) {
			l.logger.Info().Msg("console input closed")
			return nil
		}
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if size > maxConsoleLine {
			l.recorder.CommandRejected()
			l.logger.Warn().
				Int("bytes", size).
				Int("limit", maxConsoleLine).
				Str("line", line).
				Msg("console command rejected, line too long")
			continue
		}
		l.Submit(line)
	}
}

// readConsoleLine returns one line without its terminator and the line's full
// length. Past maxConsoleLine only a short prefix is kept and the rest of the
// line is discarded. io.EOF is returned only when no bytes were read.
func readConsoleLine(rd *bufio.Reader) (string, int, error) {
	var buf []byte
	size := 0
	for {
		chunk, err := rd.ReadSlice('\n')
		size += len(chunk)
		if size <= maxConsoleLine {
			buf = append(buf, chunk...)
		} else if len(buf) > maxRejectedPrefix {
			buf = buf[:maxRejectedPrefix]
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && size > 0:
			err = nil
		}
		if err != nil {
			return "", size, err
		}
		line := strings.TrimSuffix(string(buf), "\n")
		line = strings.TrimSuffix(line, "\r")
		return line, size, nil
	}
}

// Submit formats and broadcasts one operator line. It reports whether a
// broadcast happened.
func (l *ConsoleLoop) Submit(line string) bool {
	out, err := command.Format(line)
	if errors.Is(err, command.ErrEmptyCommand) {
		return false
	}
	if err != nil {
		l.recorder.CommandRejected()
		l.logger.Warn().Err(err).Str("line", line).Msg("console command rejected")
		return false
	}
	res := l.registry.BroadcastLine(out)
	l.recorder.Broadcast(res.Targets, res.Failed)
	l.logger.Debug().
		Str("command", out).
		Int("targets", res.Targets).
		Int("failed", res.Failed).
		Msg("console command broadcast")
	return true
}

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/jgivc/mediafetch/internal/common"
)

const (
	readBufferSize = 32 * 1024
	outputHead     = 16 * 1024
	outputTail     = 48 * 1024
	outputCut      = "...\n"
	drainTimeout   = 2 * time.Second
)

type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}

	return "stdout"
}

type Command struct {
	Path    string
	Args    []string
	Dir     string
	Timeout time.Duration
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// LineFunc receives every complete output line in the order it was read.
type LineFunc func(stream Stream, line string)

type Result struct {
	ExitCode int
	Output   string
}

// ExitError is returned when the process finished on its own with a non-zero code.
type ExitError struct {
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process exited with code %d", e.Code)
}

type chunk struct {
	stream Stream
	data   []byte
}

type processRunner struct {
	pollInterval time.Duration
	log          *slog.Logger
}

func NewProcessRunner(pollInterval time.Duration, log *slog.Logger) *processRunner {
	return &processRunner{
		pollInterval: pollInterval,
		log:          log.With(slog.String("item", "ProcessRunner")),
	}
}

// Run starts the command and reads both of its output streams until it exits. The caller
// is never blocked on a read: output arrives through a channel and the loop wakes at least
// every poll interval to check the timeout and ctx.
func (r *processRunner) Run(ctx context.Context, c Command, onLine LineFunc) (*Result, error) {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrProcessStart, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrProcessStart, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrProcessStart, err)
	}

	log := r.log.With(slog.Int("pid", cmd.Process.Pid))
	log.Debug("Process started", slog.String("command", c.String()))

	chunks := make(chan chunk, 16)

	var wg sync.WaitGroup
	wg.Add(2)
	go read(Stdout, stdout, chunks, &wg)
	go read(Stderr, stderr, chunks, &wg)
	go func() {
		wg.Wait()
		close(chunks)
	}()

	var (
		out      output
		lines    = map[Stream]*bytes.Buffer{Stdout: {}, Stderr: {}}
		started  = time.Now()
		ticker   = time.NewTicker(r.pollInterval)
		killErr  error
		drainEnd <-chan time.Time
	)
	defer ticker.Stop()

	dispatch := func(s Stream, line string) {
		line = strings.TrimSuffix(line, "\r")
		out.append(line)
		if onLine != nil {
			onLine(s, line)
		}
	}

	kill := func(reason error) {
		if killErr != nil {
			return
		}
		killErr = reason
		if err := cmd.Process.Kill(); err != nil {
			log.Warn("Cannot kill process", slog.Any("error", err))
		}
		drainEnd = time.After(drainTimeout)
	}

	done := ctx.Done()

loop:
	for {
		select {
		case ch, ok := <-chunks:
			if !ok {
				break loop
			}

			buf := lines[ch.stream]
			buf.Write(ch.data)
			for {
				i := bytes.IndexByte(buf.Bytes(), '\n')
				if i < 0 {
					break
				}
				line := string(buf.Next(i + 1))
				dispatch(ch.stream, line[:len(line)-1])
			}
		case <-ticker.C:
			if c.Timeout > 0 && time.Since(started) > c.Timeout {
				log.Warn("Process timed out", slog.Duration("timeout", c.Timeout))
				kill(fmt.Errorf("%w after %s", common.ErrProcessTimeout, c.Timeout))
			}
		case <-done:
			done = nil
			log.Info("Process cancelled")
			kill(common.ErrProcessCancelled)
		case <-drainEnd:
			// A grandchild may still hold the pipes open.
			break loop
		}
	}

	go func() {
		for range chunks {
		}
	}()

	for _, s := range []Stream{Stdout, Stderr} {
		if rest := lines[s].String(); rest != "" {
			dispatch(s, rest)
		}
	}

	waitErr := cmd.Wait()

	res := &Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Output:   out.String(),
	}

	if killErr != nil {
		return res, killErr
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return res, &ExitError{Code: exitErr.ExitCode(), Output: res.Output}
		}

		return res, waitErr
	}

	log.Debug("Process finished", slog.Duration("elapsed", time.Since(started)))

	return res, nil
}

func read(s Stream, r io.Reader, out chan<- chunk, wg *sync.WaitGroup) {
	defer wg.Done()

	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			out <- chunk{stream: s, data: data}
		}
		if err != nil {
			return
		}
	}
}

// output keeps the head and the tail of the combined process output for diagnostics.
// Errors are usually printed last, so the middle is what gets dropped.
type output struct {
	head []byte
	tail []byte
	cut  bool
}

func (o *output) append(line string) {
	s := line + "\n"

	if room := outputHead - len(o.head); room > 0 {
		n := min(room, len(s))
		o.head = append(o.head, s[:n]...)
		s = s[n:]
	}
	if s == "" {
		return
	}

	o.tail = append(o.tail, s...)
	if len(o.tail) > 2*outputTail {
		o.tail = append(o.tail[:0], o.tail[len(o.tail)-outputTail:]...)
		o.cut = true
	}
}

func (o *output) String() string {
	tail, cut := o.tail, o.cut
	if len(tail) > outputTail {
		tail, cut = tail[len(tail)-outputTail:], true
	}

	var b strings.Builder
	b.Grow(len(o.head) + len(outputCut) + len(tail))
	b.Write(o.head)
	if cut {
		b.WriteString(outputCut)
	}
	b.Write(tail)

	return b.String()
}

package driver

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"

	"netbench/errors"
)

// lineSource reads operator input on one goroutine so the menu and an
// interactive shell never read the same stream concurrently.
type lineSource struct {
	lines chan string
}

func newLineSource(in io.Reader) *lineSource {
	s := &lineSource{lines: make(chan string)}
	go func() {
		defer close(s.lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			s.lines <- scanner.Text()
		}
	}()
	return s
}

// next returns the next line, or false on end of input or cancellation.
func (s *lineSource) next(ctx context.Context) (string, bool) {
	select {
	case line, ok := <-s.lines:
		return line, ok
	case <-ctx.Done():
		return "", false
	}
}

// shellInput returns a reader over the remaining lines that reports EOF once
// done is closed, handing input back to the menu.
func (s *lineSource) shellInput(done <-chan struct{}) io.Reader {
	return &shellReader{src: s, done: done}
}

type shellReader struct {
	src  *lineSource
	done <-chan struct{}
	buf  []byte
}

func (r *shellReader) Read(p []byte) (int, error) {
	if len(r.buf) == 0 {
		select {
		case line, ok := <-r.src.lines:
			if !ok {
				return 0, io.EOF
			}
			r.buf = []byte(line + "\n")
		case <-r.done:
			return 0, io.EOF
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// parseChoice parses a 1-based selection in [1, limit].
func parseChoice(line string, limit int) (int, error) {
	line = strings.TrimSpace(line)
	choice, err := strconv.Atoi(line)
	if err != nil {
		return 0, errors.New(errors.ErrUserInput, "not a number",
			map[string]interface{}{
				"input": line,
			}, nil)
	}
	if choice < 1 || choice > limit {
		return 0, errors.New(errors.ErrUserInput, "choice out of range",
			map[string]interface{}{
				"input": choice,
				"max":   limit,
			}, nil)
	}
	return choice, nil
}

package progress

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/franksops/siptransfer/report"
)

// ErrAlreadyListening is returned when Listen is called on a parser that is
// still consuming a pipe.
var ErrAlreadyListening = errors.New("parser is already listening")

// rsync --info=progress2 emits lines like
//
//	1,234,567  42%  1.23MB/s    0:00:05 (xfr#3, ir-chk=1000/1234)
const rsyncPattern = `\s*(?P<volume>[0-9\.,]+[a-zA-Z]*)` +
	`\s+(?P<percent>\d+)%` +
	`\s+(?P<rate>[0-9\.,]+[\/a-zA-Z]+)` +
	`\s+(?P<time>[\d+:?]+)` +
	`(\s+\(xfr#(?P<xfr>\d+),\s+(ir-chk|to-chk)=(?P<chk>\d+\/\d+)\))?`

const unknown = "?"

// RsyncProgress is one parsed progress line.
type RsyncProgress struct {
	Volume  string // transferred volume so far
	Percent int
	Rate    string // current transfer rate
	Time    string // elapsed time
	Xfr     int    // index of the file currently transferred
	Chk     string // files left to check / files scanned so far; empty if not reported
}

// Verbose renders the line shown to users while files are synced.
func (p RsyncProgress) Verbose() string {
	return fmt.Sprintf("syncing files, %d%% @ %s", p.Percent, p.Rate)
}

// RsyncParser parses `rsync --info=progress2` output. A parser consumes at most
// one pipe at a time.
type RsyncParser struct {
	regex *RegexParser

	listening atomic.Bool
	wg        sync.WaitGroup

	mu  sync.Mutex
	err error
}

// NewRsyncParser returns an idle parser.
func NewRsyncParser() *RsyncParser {
	return &RsyncParser{
		regex: MustRegexParser(rsyncPattern, map[string]Converter{
			"percent": Int,
			"xfr":     Int,
		}),
	}
}

// Listening reports whether a background reader is active.
func (p *RsyncParser) Listening() bool {
	return p.listening.Load()
}

// Parse converts a single line. ok is false if the line is not a progress line.
func (p *RsyncParser) Parse(line string) (RsyncProgress, bool) {
	fields, err := p.regex.Parse(line)
	if err != nil || fields == nil {
		return RsyncProgress{}, false
	}

	out := RsyncProgress{
		Volume: unknown,
		Rate:   unknown,
		Time:   unknown,
	}
	if v, ok := fields["volume"].(string); ok {
		out.Volume = v
	}
	if v, ok := fields["percent"].(int); ok {
		out.Percent = v
	}
	if v, ok := fields["rate"].(string); ok {
		out.Rate = v
	}
	if v, ok := fields["time"].(string); ok {
		out.Time = v
	}
	if v, ok := fields["xfr"].(int); ok {
		out.Xfr = v
	}
	if v, ok := fields["chk"].(string); ok {
		out.Chk = v
	}
	return out, true
}

// Listen consumes the named pipe in a background goroutine until its writing
// end is closed. Every progress line updates progress and calls notify.
//
// Listen returns once the reader goroutine is running and about to open the
// pipe, so the caller may open the write end right after: opening a FIFO for
// writing blocks until a reader shows up.
func (p *RsyncParser) Listen(pipe string, progress *report.Progress, notify func()) error {
	if !p.listening.CompareAndSwap(false, true) {
		return fmt.Errorf("%w at '%s'", ErrAlreadyListening, pipe)
	}
	if notify == nil {
		notify = func() {}
	}
	p.setErr(nil)

	ready := make(chan struct{})
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.listening.Store(false)

		close(ready)
		f, err := os.Open(pipe)
		if err != nil {
			p.setErr(fmt.Errorf("failed to open pipe: %w", err))
			return
		}
		defer f.Close()

		if err := p.consume(f, progress, notify); err != nil {
			p.setErr(err)
		}
	}()
	<-ready
	return nil
}

// Wait blocks until the current listener has exited and returns its error, if any.
func (p *RsyncParser) Wait() error {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *RsyncParser) consume(r io.Reader, progress *report.Progress, notify func()) error {
	scanner := bufio.NewScanner(r)
	scanner.Split(scanLines)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		parsed, ok := p.Parse(line)
		if !ok {
			continue
		}
		progress.Update(parsed.Percent, parsed.Verbose())
		notify()
	}
	if err := scanner.Err(); err != nil {
		// keep draining, a reader that stops early makes the writer fail with EPIPE
		_, _ = io.Copy(io.Discard, r)
		return fmt.Errorf("failed to read progress: %w", err)
	}
	return nil
}

func (p *RsyncParser) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// scanLines splits on '\n' and on the bare '\r' rsync uses to redraw its
// progress line.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

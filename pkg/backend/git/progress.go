package git

import (
	"bytes"
	"io"
	"regexp"
	"strconv"
)

var (
	percentagePattern = regexp.MustCompile(`(\d+)%`)
	speedPattern      = regexp.MustCompile(`\|\s*([0-9.]+ [KMG]?i?B/s)`)
)

// progressWriter parses the progress lines that the server sends during a
// push or pull.
type progressWriter struct {
	report func(percentage float64, speed string)
	buf    []byte
}

func (b *Backend) progressWriter() io.Writer {
	b.lock.Lock()
	events := b.events
	b.lock.Unlock()

	if events == nil {
		return nil
	}
	return &progressWriter{report: events.ReportProgress}
}

func (b *Backend) reportDone() {
	b.lock.Lock()
	events := b.events
	b.lock.Unlock()

	if events != nil {
		events.ReportProgress(100, "")
	}
}

// Write splits the output on carriage returns and newlines, since the
// server rewrites the same line as progress is made.
func (w *progressWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexAny(w.buf, "\r\n")
		if i < 0 {
			return len(p), nil
		}

		line := w.buf[:i]
		w.buf = w.buf[i+1:]
		if percentage, speed, ok := parseProgress(string(line)); ok {
			w.report(percentage, speed)
		}
	}
}

func parseProgress(line string) (percentage float64, speed string, ok bool) {
	match := percentagePattern.FindStringSubmatch(line)
	if match == nil {
		return 0, "", false
	}

	percentage, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, "", false
	}

	if speedMatch := speedPattern.FindStringSubmatch(line); speedMatch != nil {
		speed = speedMatch[1]
	}
	return percentage, speed, true
}

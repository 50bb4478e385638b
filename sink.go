package pgstage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
)

// sinkQueueDepth bounds the number of mapped rows buffered between the file
// pipelines and the drainer, so backpressure from the copy channel
// propagates upstream instead of accumulating rows in memory.
const sinkQueueDepth = 256

// copySink is the single shared write destination for all file pipelines.
// Producers enqueue mapped rows concurrently; one drainer serializes them to
// delimited text on the wire stream. Record writes are atomic, so rows from
// different files interleave but never tear.
type copySink struct {
	rows   chan []any
	wc     io.WriteCloser
	cw     *csv.Writer
	fields []string
	done   chan struct{}
	err    error
}

// newCopySink starts the drainer against w, which is the write side of the
// COPY … FROM STDIN stream. width is the number of columns per row.
func newCopySink(w io.WriteCloser, width int) *copySink {
	s := &copySink{
		rows:   make(chan []any, sinkQueueDepth),
		wc:     w,
		cw:     csv.NewWriter(w),
		fields: make([]string, width),
		done:   make(chan struct{}),
	}
	go s.drain()
	return s
}

func (s *copySink) drain() {
	defer close(s.done)
	for vals := range s.rows {
		if s.err != nil {
			// Keep consuming so producers never block on a dead sink.
			continue
		}
		for i, v := range vals {
			s.fields[i] = formatValue(v)
		}
		if err := s.cw.Write(s.fields); err != nil {
			s.err = err
		}
	}
	if s.err == nil {
		s.cw.Flush()
		s.err = s.cw.Error()
	}
	if err := s.wc.Close(); s.err == nil {
		s.err = err
	}
}

// Write enqueues one mapped row, blocking when the queue is full.
func (s *copySink) Write(ctx context.Context, vals []any) error {
	select {
	case s.rows <- vals:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals end of input, waits for the drainer to flush and close the
// wire stream, and returns the first serialization error.
func (s *copySink) Close() error {
	close(s.rows)
	<-s.done
	return s.err
}

// formatValue renders one staged value as a COPY CSV field. Nil renders as
// the unquoted empty field, which COPY reads as NULL.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		if x {
			return "t"
		}
		return "f"
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case []string:
		return pgTextArray(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// pgTextArray renders a string slice as a PostgreSQL array literal, for
// expand-marked columns staged as arrays.
func pgTextArray(elems []string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range elems {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		e = strings.ReplaceAll(e, `\`, `\\`)
		e = strings.ReplaceAll(e, `"`, `\"`)
		b.WriteString(e)
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

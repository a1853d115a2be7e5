package sink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
)

// file is the shared destination of the file sinks. Table segments are staged
// in temporary files and appended whole under mu. Once sequenced, segments are
// written in table order; a segment committed early waits until every table
// before it is written or aborted.
type file struct {
	mu       sync.Mutex
	w        io.WriteCloser
	location string
	closed   bool
	err      error

	order   []string
	next    int
	staged  map[string]*segment
	settled map[string]bool
}

func (f *file) sequence(tables []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = slices.Clone(tables)
	f.next = 0
	f.staged = make(map[string]*segment)
	f.settled = make(map[string]bool)
}

// place writes the segment of table, or stages it until its turn. The file
// owns seg from here on.
func (f *file) place(table string, seg *segment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		seg.discard()
		return errors.New("sink: closed")
	}
	if !slices.Contains(f.order[min(f.next, len(f.order)):], table) {
		defer seg.discard()
		if f.err == nil {
			f.err = seg.copyTo(f.w)
		}
		return f.err
	}
	f.staged[table] = seg
	return f.drain()
}

// skip lets the tables after an aborted one through.
func (f *file) skip(table string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.settled == nil {
		return
	}
	f.settled[table] = true
	_ = f.drain()
}

func (f *file) drain() error {
	for f.err == nil && f.next < len(f.order) {
		t := f.order[f.next]
		if seg, ok := f.staged[t]; ok {
			delete(f.staged, t)
			f.err = seg.copyTo(f.w)
			seg.discard()
		} else if !f.settled[t] {
			break
		}
		f.next++
	}
	return f.err
}

func (f *file) write(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := io.WriteString(f.w, s)
	return err
}

// close writes any segments still waiting, in order, then the trailer.
func (f *file) close(trailer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	for _, t := range f.order {
		if seg, ok := f.staged[t]; ok {
			if f.err == nil {
				f.err = seg.copyTo(f.w)
			}
			seg.discard()
		}
	}
	if f.err != nil {
		return errors.Join(f.err, f.w.Close())
	}
	_, werr := io.WriteString(f.w, trailer)
	return errors.Join(werr, f.w.Close())
}

// segment is a temp-file staging buffer for one table.
type segment struct {
	tmp    *os.File
	bw     *bufio.Writer
	done   bool
	handed bool
}

func newSegment() (*segment, error) {
	tmp, err := os.CreateTemp("", "leapdump-*.part")
	if err != nil {
		return nil, fmt.Errorf("sink: staging segment: %w", err)
	}
	return &segment{tmp: tmp, bw: bufio.NewWriter(tmp)}, nil
}

func (s *segment) WriteString(str string) (int, error) {
	return s.bw.WriteString(str)
}

func (s *segment) Write(p []byte) (int, error) {
	return s.bw.Write(p)
}

// commit hands the staged bytes of table to dst.
func (s *segment) commit(dst *file, table string) error {
	if s.done || s.handed {
		return errors.New("sink: segment already finished")
	}
	if err := s.bw.Flush(); err != nil {
		s.abort(dst, table)
		return fmt.Errorf("sink: flushing segment: %w", err)
	}
	if _, err := s.tmp.Seek(0, io.SeekStart); err != nil {
		s.abort(dst, table)
		return fmt.Errorf("sink: rewinding segment: %w", err)
	}
	s.handed = true
	return dst.place(table, s)
}

// abort drops a segment that was not committed.
func (s *segment) abort(dst *file, table string) {
	if s.done || s.handed {
		return
	}
	s.discard()
	dst.skip(table)
}

func (s *segment) copyTo(w io.Writer) error {
	_, err := io.Copy(w, s.tmp)
	return err
}

func (s *segment) discard() {
	if s.done {
		return
	}
	s.done = true
	_ = s.tmp.Close()
	_ = os.Remove(s.tmp.Name())
}

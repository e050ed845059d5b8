package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/gorewood/coursemd/internal/export"
	"github.com/gorewood/coursemd/internal/staging"
)

type phase int

const (
	phaseExport phase = iota
	phaseHeader
	phaseBody
	phasePad
	phaseTerminator
	phaseDone
)

// Stream is a pull-based tar producer. Each Next call exports at most one
// course and returns one piece of the archive. Staging trees are kept until
// the whole archive, terminator included, has been handed out, then removed
// by the call that returns io.EOF or by Close.
//
// A Stream is not safe for concurrent use.
type Stream struct {
	ctx context.Context
	p   *Packager
	req Request

	index int
	phase phase

	cur    *export.Result
	file   *os.File
	header []byte
	size   int64
	sent   int64

	trees   []*staging.Tree
	pending []byte
	sum     Summary
	err     error
	closed  bool
}

// Stream starts a lazy archive of req. Nothing is exported until the first
// Next or Read call.
func (p *Packager) Stream(ctx context.Context, req Request) *Stream {
	return &Stream{ctx: ctx, p: p, req: req}
}

// Summary reports the courses processed so far.
func (s *Stream) Summary() Summary {
	return s.sum
}

// Next returns the next archive chunk, or io.EOF once the terminator was
// returned. After an error every later call returns the same error.
func (s *Stream) Next() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	chunk, err := s.next()
	if err != nil {
		s.fail(err)
		return nil, err
	}
	return chunk, nil
}

func (s *Stream) next() ([]byte, error) {
	for {
		switch s.phase {
		case phaseExport:
			if s.index >= len(s.req.IDs) {
				s.phase = phaseTerminator
				continue
			}
			if err := s.ctx.Err(); err != nil {
				return nil, err
			}
			if err := s.startItem(); err != nil {
				return nil, err
			}

		case phaseHeader:
			s.phase = phaseBody
			return s.header, nil

		case phaseBody:
			if s.sent >= s.size {
				s.closeFile()
				s.phase = phasePad
				continue
			}
			chunk := make([]byte, min(BodyChunk, s.size-s.sent))
			if _, err := io.ReadFull(s.file, chunk); err != nil {
				return nil, fmt.Errorf("reading export of %s: %w", s.cur.CourseID, err)
			}
			s.sent += int64(len(chunk))
			return chunk, nil

		case phasePad:
			s.phase = phaseExport
			s.sum.Included = append(s.sum.Included, s.cur.CourseID)
			s.cur = nil
			if n := padding(s.size); n > 0 {
				return make([]byte, n), nil
			}

		case phaseTerminator:
			s.phase = phaseDone
			return make([]byte, 2*BlockSize), nil

		default:
			s.cleanup()
			return nil, io.EOF
		}
	}
}

// startItem exports the course at index. Skipped courses leave the phase
// at export so the loop moves on to the next one.
func (s *Stream) startItem() error {
	id := s.req.IDs[s.index]
	s.index++

	res, err := s.p.exportItem(s.ctx, s.req, id)
	if err != nil {
		return err
	}
	if res == nil {
		s.sum.Skipped = append(s.sum.Skipped, id)
		return nil
	}
	s.trees = append(s.trees, res.Tree)

	f, err := os.Open(res.Path)
	if err != nil {
		return fmt.Errorf("opening export of %s: %w", id, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat export of %s: %w", id, err)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(header(res, info.Size(), s.p.exports.Now())); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing tar header for %s: %w", res.Filename, err)
	}

	s.cur, s.file = res, f
	s.header = buf.Bytes()
	s.size, s.sent = info.Size(), 0
	s.phase = phaseHeader
	return nil
}

// Read implements io.Reader on top of Next.
func (s *Stream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		chunk, err := s.Next()
		if err != nil {
			return 0, err
		}
		s.pending = chunk
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Close stops the stream and removes every staging tree it created.
func (s *Stream) Close() error {
	if s.err == nil {
		s.err = io.ErrClosedPipe
	}
	s.cleanup()
	return nil
}

func (s *Stream) fail(err error) {
	s.err = err
	s.cleanup()
}

func (s *Stream) closeFile() {
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
}

func (s *Stream) cleanup() {
	if s.closed {
		return
	}
	s.closed = true
	s.closeFile()
	for _, tree := range s.trees {
		if err := tree.Remove(); err != nil {
			s.p.logger.Warn("removing staging tree", "path", tree.Root(), "error", err)
		}
	}
	s.trees = nil
}

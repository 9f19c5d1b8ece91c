// Package tagstream delivers raw tag reads from reader hardware to the
// engine. Sources emit line-oriented batches: one line per antenna sweep,
// tags separated by commas or whitespace. Normalization and dedup happen
// downstream; sources pass reads through untouched.
package tagstream

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sink receives one batch of raw tag reads per reader line.
type Sink func(tags []string)

// Source pumps tag reads into a sink until exhausted or cancelled.
type Source interface {
	Run(ctx context.Context, sink Sink) error
}

// SplitLine breaks a reader line into raw tag reads.
func SplitLine(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
}

// ReaderSource streams lines from an io.Reader, e.g. stdin or a serial
// device node.
type ReaderSource struct {
	r    io.Reader
	name string
}

// NewReaderSource wraps r; name is used for logging only.
func NewReaderSource(r io.Reader, name string) *ReaderSource {
	return &ReaderSource{r: r, name: name}
}

// Run scans lines until EOF or ctx cancellation. Blank lines are skipped.
func (s *ReaderSource) Run(ctx context.Context, sink Sink) error {
	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "tagstream: cancelled")
		}
		tags := SplitLine(scanner.Text())
		if len(tags) == 0 {
			continue
		}
		sink(tags)
	}
	if err := scanner.Err(); err != nil {
		return eris.Wrapf(err, "tagstream: read %s", s.name)
	}
	zap.L().Debug("tag source drained", zap.String("source", s.name))
	return nil
}

// FileSource replays tag reads from a capture file.
type FileSource struct {
	path string
}

// NewFileSource reads reads from path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Run(ctx context.Context, sink Sink) error {
	f, err := os.Open(s.path)
	if err != nil {
		return eris.Wrapf(err, "tagstream: open %s", s.path)
	}
	defer f.Close()
	return NewReaderSource(f, s.path).Run(ctx, sink)
}

// ChannelSource delivers batches from an in-process channel, for tests and
// programmatic feeds. Run returns when the channel closes.
type ChannelSource struct {
	ch <-chan []string
}

func NewChannelSource(ch <-chan []string) *ChannelSource {
	return &ChannelSource{ch: ch}
}

func (s *ChannelSource) Run(ctx context.Context, sink Sink) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case tags, ok := <-s.ch:
			if !ok {
				return nil
			}
			if len(tags) > 0 {
				sink(tags)
			}
		}
	}
}

// TCPSource accepts reader connections on a listen address. Each connection
// streams lines independently; a malformed or dropped connection never takes
// down the listener.
type TCPSource struct {
	addr string
}

// NewTCPSource listens on addr, e.g. ":9090".
func NewTCPSource(addr string) *TCPSource {
	return &TCPSource{addr: addr}
}

func (s *TCPSource) Run(ctx context.Context, sink Sink) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return eris.Wrapf(err, "tagstream: listen %s", s.addr)
	}
	zap.L().Info("tag reader listener started", zap.String("addr", ln.Addr().String()))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return eris.Wrap(err, "tagstream: accept")
			}
			g.Go(func() error {
				defer conn.Close()
				stop := context.AfterFunc(ctx, func() { conn.Close() })
				defer stop()
				zap.L().Info("reader connected", zap.String("remote", conn.RemoteAddr().String()))
				src := NewReaderSource(conn, conn.RemoteAddr().String())
				if err := src.Run(ctx, sink); err != nil {
					zap.L().Warn("reader connection failed", zap.Error(err))
				}
				return nil
			})
		}
	})
	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

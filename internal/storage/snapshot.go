package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/DataDog/zstd"

	"github.com/san-kum/gridsim/internal/particle"
)

// SnapshotWriter writes the particle trajectory file: a "n size" header
// followed by one "x y" line per particle for every saved step.
type SnapshotWriter struct {
	file   *os.File
	z      *zstd.Writer
	buf    *bufio.Writer
	header bool
}

// NewSnapshotWriter creates path, compressing the stream with zstd when
// compress is set.
func NewSnapshotWriter(path string, compress bool) (*SnapshotWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	s := &SnapshotWriter{file: f}
	var w io.Writer = f
	if compress {
		s.z = zstd.NewWriterLevel(f, 1)
		w = s.z
	}
	s.buf = bufio.NewWriterSize(w, 64<<10)
	return s, nil
}

func (s *SnapshotWriter) WriteFrame(step int, size float64, ps []particle.Particle) error {
	if !s.header {
		if _, err := fmt.Fprintf(s.buf, "%d %g\n", len(ps), size); err != nil {
			return err
		}
		s.header = true
	}
	var line []byte
	for _, p := range ps {
		line = strconv.AppendFloat(line[:0], p.X, 'g', -1, 64)
		line = append(line, ' ')
		line = strconv.AppendFloat(line, p.Y, 'g', -1, 64)
		line = append(line, '\n')
		if _, err := s.buf.Write(line); err != nil {
			return err
		}
	}
	return nil
}

func (s *SnapshotWriter) Close() error {
	err := s.buf.Flush()
	if s.z != nil {
		err = errors.Join(err, s.z.Close())
	}
	return errors.Join(err, s.file.Close())
}

// Trajectory is a decoded snapshot file.
type Trajectory struct {
	N      int
	Size   float64
	Frames [][]particle.Particle
}

// ReadSnapshot decodes a file written by SnapshotWriter. Only positions are
// stored, so velocities and accelerations come back zero.
func ReadSnapshot(path string, compressed bool) (*Trajectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if compressed {
		zr := zstd.NewReader(f)
		defer zr.Close()
		r = zr
	}
	sc := bufio.NewScanner(r)

	t := &Trajectory{}
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return t, nil
	}
	if _, err := fmt.Sscanf(sc.Text(), "%d %g", &t.N, &t.Size); err != nil {
		return nil, fmt.Errorf("storage: snapshot header: %w", err)
	}

	var frame []particle.Particle
	for sc.Scan() {
		var p particle.Particle
		if _, err := fmt.Sscanf(sc.Text(), "%g %g", &p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("storage: snapshot line %q: %w", sc.Text(), err)
		}
		frame = append(frame, p)
		if len(frame) == t.N {
			t.Frames = append(t.Frames, frame)
			frame = nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(frame) != 0 {
		return nil, fmt.Errorf("storage: snapshot ends mid-frame after %d of %d particles", len(frame), t.N)
	}
	return t, nil
}

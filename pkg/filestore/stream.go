package filestore

import (
	"fmt"
	"io"
	"iter"
	"os"
	"time"
)

// InvalidRangeError reports a byte range that cannot be satisfied
// against the file's size.
type InvalidRangeError struct {
	Start int64
	End   int64
	Size  int64
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid byte range [%d, %d) for file of %d bytes", e.Start, e.End, e.Size)
}

// rangeReader limits an open file to [start, end) and owns the handle.
type rangeReader struct {
	f *os.File
	r io.Reader
}

func (rr *rangeReader) Read(p []byte) (int, error) { return rr.r.Read(p) }
func (rr *rangeReader) Close() error               { return rr.f.Close() }

// Open returns a streaming reader over [start, end) of the file, along
// with its metadata. end == 0 means read to EOF. The handle is opened
// under the store lock so a concurrent delete cannot race the caller;
// the bytes then stream outside it. Access counters update on open.
func (s *Store) Open(jobID, filename string, start, end int64) (io.ReadCloser, *FileInfo, error) {
	if err := ValidateFilename(filename, s.cfg.DeniedExtensions, s.cfg.AllowHidden); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fi, err := s.lookup(jobID, filename)
	if err != nil {
		return nil, nil, err
	}

	if end == 0 {
		end = fi.Size
	}
	if start < 0 || end < start || end > fi.Size {
		return nil, nil, &InvalidRangeError{Start: start, End: end, Size: fi.Size}
	}

	f, err := os.Open(s.filePath(jobID, filename))
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	if start > 0 {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("seek to range start: %w", err)
		}
	}

	fi.Downloads++
	fi.LastAccess = time.Now().UTC()
	s.persistManifest(jobID)

	cp := *fi
	return &rangeReader{f: f, r: io.LimitReader(f, end-start)}, &cp, nil
}

// Stream yields the bytes of [start, end) in chunks of at most
// chunkSize. A chunkSize of zero or less uses DefaultChunkSize; an end
// of zero reads to EOF. The sequence is finite and not restartable
// (iterating again re-opens from the range start). Each yielded slice
// is only valid until the next iteration. A read error is yielded once
// with a nil chunk, then iteration stops.
func (s *Store) Stream(jobID, filename string, chunkSize int, start, end int64) iter.Seq2[[]byte, error] {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	return func(yield func([]byte, error) bool) {
		rc, _, err := s.Open(jobID, filename, start, end)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rc.Close()

		buf := make([]byte, chunkSize)
		for {
			n, err := rc.Read(buf)
			if n > 0 {
				if !yield(buf[:n], nil) {
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("stream file: %w", err))
				return
			}
		}
	}
}

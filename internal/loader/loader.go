// Package loader provides chunked, on-demand access to large manuscript
// text files without materializing them fully in memory.
package loader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/draftcache/draftcache/internal/cache"
	"github.com/draftcache/draftcache/pkg/cacheerr"
	"github.com/draftcache/draftcache/pkg/utils"
)

const (
	// DefaultChunkSize bounds how much of a file a single read
	// materializes.
	DefaultChunkSize = 1 * 1024 * 1024 // 1MB

	// DefaultMaxChunks bounds how many chunks stay materialized for
	// locality-friendly access patterns.
	DefaultMaxChunks = 10
)

// Loader reads a UTF-8 text file in bounded chunks. A small internal LRU
// keeps recently read chunks so sequential and locality-friendly access
// does not hit the disk repeatedly. The file is assumed immutable while
// open; if its size or mtime changes, subsequent reads fail with Stale
// and the caller must reopen.
type Loader struct {
	path      string
	chunkSize int64
	size      int64
	modTime   time.Time

	chunks *cache.BoundedLRUCache
	logger *utils.StructuredLogger
}

// Options configures a Loader.
type Options struct {
	ChunkSize int64
	MaxChunks int
	Logger    *utils.StructuredLogger
}

// Open stats the file and returns a handle. No content is read. A missing
// file fails with NotFound.
func Open(path string, optFns ...func(*Options)) (*Loader, error) {
	opts := Options{
		ChunkSize: DefaultChunkSize,
		MaxChunks: DefaultMaxChunks,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = DefaultMaxChunks
	}
	if opts.Logger == nil {
		opts.Logger = utils.NewStructuredLogger(nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cacheerr.NotFound("loader", path)
		}
		return nil, cacheerr.IOFailure("loader", err).WithOperation("open")
	}

	return &Loader{
		path:      path,
		chunkSize: opts.ChunkSize,
		size:      info.Size(),
		modTime:   info.ModTime(),
		// Byte budget of maxChunks full chunks caps the number of
		// materialized chunks.
		chunks: cache.NewBoundedLRUCache(int64(opts.MaxChunks) * opts.ChunkSize),
		logger: opts.Logger.WithComponent("loader"),
	}, nil
}

// Size returns the file size captured at open time.
func (l *Loader) Size() int64 {
	return l.size
}

// ChunkSize returns the configured chunk size.
func (l *Loader) ChunkSize() int64 {
	return l.chunkSize
}

// NumChunks returns how many chunks cover the file.
func (l *Loader) NumChunks() int {
	if l.size == 0 {
		return 0
	}
	return int((l.size + l.chunkSize - 1) / l.chunkSize)
}

// ReadChunk returns the bytes of chunk index, at most chunkSize long.
// Reading one chunk never requires reading any other. The source file is
// re-stat'ed before each disk read; a size or mtime change fails with
// Stale. Cached chunks are a snapshot of the file as seen at open time
// and keep serving without a staleness check, so after an external edit
// already-loaded chunks return pre-change data while unloaded chunks
// fail Stale. A transient read error gets one transparent retry before
// being surfaced as IOFailure.
func (l *Loader) ReadChunk(index int) ([]byte, error) {
	if index < 0 || index >= l.NumChunks() {
		return nil, cacheerr.New(cacheerr.ErrCodeNotFound,
			fmt.Sprintf("chunk %d out of range [0,%d)", index, l.NumChunks())).
			WithComponent("loader").
			WithOperation("read_chunk")
	}

	key := chunkKey(index)
	if data, ok := l.chunks.Get(key); ok {
		return data, nil
	}

	if err := l.checkStale(); err != nil {
		return nil, err
	}

	data, err := l.readChunkFromDisk(index)
	if err != nil {
		// One transparent retry for transient I/O faults.
		l.logger.Debug("chunk read failed, retrying", map[string]interface{}{
			"path":  l.path,
			"chunk": index,
			"error": err.Error(),
		})
		data, err = l.readChunkFromDisk(index)
		if err != nil {
			return nil, cacheerr.IOFailure("loader", err).
				WithOperation("read_chunk").
				WithDetail("path", l.path).
				WithDetail("chunk", index)
		}
	}

	// Cache write failures (a chunk somehow larger than the whole
	// budget) are not load-bearing.
	_ = l.chunks.Set(key, data)
	return data, nil
}

// readChunkFromDisk performs a single positioned read of one chunk.
func (l *Loader) readChunkFromDisk(index int) ([]byte, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	offset := int64(index) * l.chunkSize
	length := l.chunkSize
	if offset+length > l.size {
		length = l.size - offset
	}

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// checkStale compares the file's current stat against open-time values.
func (l *Loader) checkStale() error {
	info, err := os.Stat(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return cacheerr.NotFound("loader", l.path)
		}
		return cacheerr.IOFailure("loader", err).WithOperation("stat")
	}
	if info.Size() != l.size || !info.ModTime().Equal(l.modTime) {
		return cacheerr.Stale("loader", l.path)
	}
	return nil
}

// Lines returns a restartable line iterator. Every call reopens the
// underlying stream from the beginning, so a consumed iterator can simply
// be replaced by calling Lines again.
func (l *Loader) Lines() *LineIterator {
	it := &LineIterator{loader: l}

	if err := l.checkStale(); err != nil {
		it.err = err
		return it
	}

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			it.err = cacheerr.NotFound("loader", l.path)
		} else {
			it.err = cacheerr.IOFailure("loader", err).WithOperation("iterate")
		}
		return it
	}

	scanner := bufio.NewScanner(f)
	// Lines longer than the default scanner buffer are legal in
	// manuscript files; allow up to one full chunk per line.
	scanner.Buffer(make([]byte, 64*1024), int(l.chunkSize))

	it.file = f
	it.scanner = scanner
	return it
}

// LineIterator yields the lines of the file lazily and in order.
type LineIterator struct {
	loader  *Loader
	file    *os.File
	scanner *bufio.Scanner
	err     error
	closed  bool
}

// Next advances to the next line, returning false at EOF or on error.
func (it *LineIterator) Next() bool {
	if it.err != nil || it.closed || it.scanner == nil {
		return false
	}
	if it.scanner.Scan() {
		return true
	}
	if err := it.scanner.Err(); err != nil {
		it.err = cacheerr.IOFailure("loader", err).WithOperation("iterate")
	}
	it.Close()
	return false
}

// Text returns the current line without its trailing newline.
func (it *LineIterator) Text() string {
	if it.scanner == nil {
		return ""
	}
	return it.scanner.Text()
}

// Err returns the first failure encountered, if any.
func (it *LineIterator) Err() error {
	return it.err
}

// Close releases the underlying stream. Safe to call more than once.
func (it *LineIterator) Close() {
	if it.closed {
		return
	}
	it.closed = true
	if it.file != nil {
		_ = it.file.Close()
	}
}

func chunkKey(index int) string {
	return fmt.Sprintf("chunk:%d", index)
}

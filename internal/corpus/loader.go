package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"
)

// Source supplies a corpus at startup.
type Source interface {
	Load(ctx context.Context) (*Corpus, error)
}

// FileSource loads the corpus from a metadata JSON array and a quantized
// embedding JSON array. Either file may be gzip (.gz) or zstd (.zst) compressed.
type FileSource struct {
	MetaPath       string
	EmbeddingsPath string
}

// NewFileSource creates a FileSource for the two corpus files.
func NewFileSource(metaPath, embeddingsPath string) *FileSource {
	return &FileSource{
		MetaPath:       metaPath,
		EmbeddingsPath: embeddingsPath,
	}
}

// Load reads both files concurrently and returns the aligned corpus.
func (s *FileSource) Load(ctx context.Context) (*Corpus, error) {
	var (
		items   []ReferenceItem
		entries []QuantizedEntry
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return decodeFile(ctx, s.MetaPath, &items)
	})
	g.Go(func() error {
		return decodeFile(ctx, s.EmbeddingsPath, &entries)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return New(items, entries)
}

// decodeFile JSON-decodes path into v.
func decodeFile(ctx context.Context, path string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r, err := Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("corpus: failed to parse %s: %w", path, err)
	}
	return nil
}

// Open opens a corpus file, transparently decompressing by extension.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("corpus: failed to open %s: %w", path, err)
	}

	switch {
	case strings.HasSuffix(path, ".zst"):
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("corpus: failed to open zstd stream %s: %w", path, err)
		}
		return &zstdReadCloser{dec: dec, file: f}, nil
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("corpus: failed to open gzip stream %s: %w", path, err)
		}
		return &gzipReadCloser{Reader: gz, file: f}, nil
	default:
		return f, nil
	}
}

type zstdReadCloser struct {
	dec  *zstd.Decoder
	file *os.File
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.dec.Read(p)
}

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.file.Close()
}

type gzipReadCloser struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipReadCloser) Close() error {
	gzErr := g.Reader.Close()
	if err := g.file.Close(); err != nil {
		return err
	}
	return gzErr
}

// StaticSource serves an already-built corpus.
type StaticSource struct {
	Corpus *Corpus
	Err    error
}

// Load returns the configured corpus or error.
func (s StaticSource) Load(ctx context.Context) (*Corpus, error) {
	return s.Corpus, s.Err
}

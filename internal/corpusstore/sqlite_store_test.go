package corpusstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiclooc-rgb/card-news-generator/internal/corpus"
	"github.com/chiclooc-rgb/card-news-generator/internal/vector"
)

func newTestStore(t *testing.T) *SQLiteCorpusStore {
	t.Helper()
	store := NewSQLiteCorpusStore()
	require.NoError(t, store.Initialize(filepath.Join(t.TempDir(), "corpus.db")))
	t.Cleanup(func() { store.Close() })
	return store
}

func testCorpus(t *testing.T) *corpus.Corpus {
	t.Helper()
	items := []corpus.ReferenceItem{
		{PageType: "COVER", MainTitle: "여름 세일", Keywords: corpus.Keywords{"세일", "여름"}, ColorPaletteFeel: "청량한 블루", FileURL: "https://cdn.example/a.png"},
		{PageType: "BODY", MainTitle: "혜택 안내", FileURL: "https://cdn.example/b.png"},
	}
	var entries []corpus.QuantizedEntry
	for _, v := range [][]float32{{0.1, 0.5, -0.3}, {0.9, -0.9, 0}} {
		data, min, max := vector.Quantize(v)
		entries = append(entries, corpus.QuantizedEntry{Data: data, Min: min, Max: max})
	}
	c, err := corpus.New(items, entries)
	require.NoError(t, err)
	return c
}

func TestImportAndLoad(t *testing.T) {
	store := newTestStore(t)
	original := testCorpus(t)

	n, err := store.Import(original)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, original.Len(), loaded.Len())
	assert.Equal(t, original.Dimensions(), loaded.Dimensions())

	for i := 0; i < original.Len(); i++ {
		assert.Equal(t, original.Item(i), loaded.Item(i))
		assert.Equal(t, original.Entry(i), loaded.Entry(i))
	}
}

func TestImportReplacesExistingRows(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Import(testCorpus(t))
	require.NoError(t, err)

	single, err := corpus.New(
		[]corpus.ReferenceItem{{PageType: "OUTRO", MainTitle: "감사합니다"}},
		[]corpus.QuantizedEntry{{Data: []byte{0, 255}, Min: -1, Max: 1}},
	)
	require.NoError(t, err)

	_, err = store.Import(single)
	require.NoError(t, err)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "감사합니다", loaded.Item(0).MainTitle)
}

func TestClear(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Import(testCorpus(t))
	require.NoError(t, err)

	removed, err := store.Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
}

func TestUninitializedStore(t *testing.T) {
	store := NewSQLiteCorpusStore()

	_, err := store.Count()
	assert.Error(t, err)
	_, err = store.Load(context.Background())
	assert.Error(t, err)
	assert.NoError(t, store.Close())
}

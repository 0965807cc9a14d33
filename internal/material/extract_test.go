package material

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-study/internal/exam"
	"github.com/mind-engage/mindengage-study/internal/storage"
)

var fakePDF = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")

type countingRunner struct {
	calls int
	out   string
	err   error
}

func (r *countingRunner) run(_ context.Context, _ []byte) (string, error) {
	r.calls++
	return r.out, r.err
}

func newExtractor(t *testing.T, r *countingRunner) (*Extractor, *storage.FSStore) {
	t.Helper()
	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return NewExtractor(blobs, r.run, nil), blobs
}

func TestKeyIsStableDigest(t *testing.T) {
	k := Key([]byte("abc"))
	assert.Len(t, k, 64)
	assert.Equal(t, k, Key([]byte("abc")))
	assert.NotEqual(t, k, Key([]byte("abd")))
}

func TestExtractText(t *testing.T) {
	r := &countingRunner{}
	x, _ := newExtractor(t, r)
	m, err := x.Extract(context.Background(), "notes.txt", []byte("  Photosynthesis converts light.\n"))
	require.NoError(t, err)
	assert.Equal(t, KindText, m.Kind)
	assert.Equal(t, "Photosynthesis converts light.", m.Text)
	assert.Equal(t, Key([]byte("  Photosynthesis converts light.\n")), m.Key)
	assert.Zero(t, r.calls)
}

func TestExtractPDFIsCached(t *testing.T) {
	r := &countingRunner{out: "\fChapter 1\nCells\n"}
	x, blobs := newExtractor(t, r)

	m, err := x.Extract(context.Background(), "bio.pdf", fakePDF)
	require.NoError(t, err)
	assert.Equal(t, KindPDF, m.Kind)
	assert.Equal(t, "Chapter 1\nCells", m.Text)
	assert.False(t, m.Cached)

	again, err := x.Extract(context.Background(), "renamed.pdf", fakePDF)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, m.Text, again.Text)
	assert.Equal(t, 1, r.calls, "identical bytes must not be extracted twice")

	rc, err := blobs.Get("materials/" + m.Key + ".txt")
	require.NoError(t, err)
	rc.Close()
}

func TestExtractPDFFailures(t *testing.T) {
	x, _ := newExtractor(t, &countingRunner{err: errors.New("exit status 1")})
	_, err := x.Extract(context.Background(), "bad.pdf", fakePDF)
	require.Error(t, err)
	assert.NotErrorIs(t, err, exam.ErrValidation)

	r := &countingRunner{out: "   \n"}
	x, _ = newExtractor(t, r)
	_, err = x.Extract(context.Background(), "scan.pdf", fakePDF)
	assert.ErrorIs(t, err, exam.ErrValidation)

	_, err = x.Extract(context.Background(), "scan.pdf", fakePDF)
	assert.ErrorIs(t, err, exam.ErrValidation)
	assert.Equal(t, 2, r.calls, "empty results are not cached")
}

func TestExtractRejects(t *testing.T) {
	x, _ := newExtractor(t, &countingRunner{})
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	for name, data := range map[string][]byte{
		"empty":      nil,
		"whitespace": []byte(" \n\t"),
		"image":      png,
	} {
		_, err := x.Extract(context.Background(), name, data)
		assert.ErrorIs(t, err, exam.ErrValidation, name)
	}
}

func TestSniffIgnoresFilename(t *testing.T) {
	k, err := Sniff([]byte("plain words"))
	require.NoError(t, err)
	assert.Equal(t, KindText, k)
	k, err = Sniff(fakePDF)
	require.NoError(t, err)
	assert.Equal(t, KindPDF, k)
	_, err = Sniff([]byte(strings.Repeat("\x00\x01\x02", 20)))
	assert.ErrorIs(t, err, exam.ErrValidation)
}

// Package material turns uploaded course files into plain text. Extracted
// text is cached in the blob store under a digest of the upload, so the same
// bytes are only ever extracted once.
package material

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/mind-engage/mindengage-study/internal/exam"
	"github.com/mind-engage/mindengage-study/internal/storage"
)

type Kind string

const (
	KindPDF  Kind = "pdf"
	KindText Kind = "text"
)

type Material struct {
	Key      string `json:"key"`
	Kind     Kind   `json:"kind"`
	Filename string `json:"filename,omitempty"`
	Text     string `json:"text"`
	Cached   bool   `json:"cached"`
}

// PDFRunner converts PDF bytes to text.
type PDFRunner func(ctx context.Context, pdf []byte) (string, error)

// Pdftotext runs poppler's pdftotext reading stdin and writing stdout.
func Pdftotext(ctx context.Context, pdf []byte) (string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", "-enc", "UTF-8", "-", "-")
	cmd.Stdin = bytes.NewReader(pdf)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}

type Extractor struct {
	blobs  storage.BlobStore
	runPDF PDFRunner
	log    *zap.Logger
}

// NewExtractor caches into blobs; a nil runner uses Pdftotext.
func NewExtractor(blobs storage.BlobStore, runPDF PDFRunner, log *zap.Logger) *Extractor {
	if runPDF == nil {
		runPDF = Pdftotext
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{blobs: blobs, runPDF: runPDF, log: log}
}

// Key is the hex BLAKE2b-256 digest of data.
func Key(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// CacheKey is the blob key holding the extracted text for key.
func CacheKey(key string) string { return "materials/" + key + ".txt" }

// Sniff classifies data by content; the filename is not trusted.
func Sniff(data []byte) (Kind, error) {
	m := mimetype.Detect(data)
	if m.Is("application/pdf") {
		return KindPDF, nil
	}
	for t := m; t != nil; t = t.Parent() {
		if t.Is("text/plain") {
			return KindText, nil
		}
	}
	return "", fmt.Errorf("%w: unsupported file type %s", exam.ErrValidation, m.String())
}

func (e *Extractor) Extract(ctx context.Context, filename string, data []byte) (Material, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Material{}, fmt.Errorf("%w: file is empty", exam.ErrValidation)
	}
	kind, err := Sniff(data)
	if err != nil {
		return Material{}, err
	}
	mat := Material{Key: Key(data), Kind: kind, Filename: filename}

	switch kind {
	case KindText:
		if !utf8.Valid(data) {
			return Material{}, fmt.Errorf("%w: text file is not valid UTF-8", exam.ErrValidation)
		}
		mat.Text = strings.TrimSpace(string(data))
	case KindPDF:
		text, cached, err := e.pdfText(ctx, mat.Key, data)
		if err != nil {
			return Material{}, err
		}
		mat.Text, mat.Cached = text, cached
	}
	if mat.Text == "" {
		return Material{}, fmt.Errorf("%w: no text could be extracted", exam.ErrValidation)
	}
	return mat, nil
}

func (e *Extractor) pdfText(ctx context.Context, key string, data []byte) (string, bool, error) {
	if text, ok := e.cached(key); ok {
		e.log.Debug("material cache hit", zap.String("key", key))
		return text, true, nil
	}
	raw, err := e.runPDF(ctx, data)
	if err != nil {
		return "", false, fmt.Errorf("extract pdf: %w", err)
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", false, nil
	}
	if e.blobs != nil {
		if _, err := e.blobs.Put(CacheKey(key), strings.NewReader(text)); err != nil {
			e.log.Warn("material cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return text, false, nil
}

func (e *Extractor) cached(key string) (string, bool) {
	if e.blobs == nil {
		return "", false
	}
	rc, err := e.blobs.Get(CacheKey(key))
	if err != nil {
		if !errors.Is(err, storage.ErrBlobNotFound) {
			e.log.Warn("material cache read failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil || len(b) == 0 {
		return "", false
	}
	return string(b), true
}

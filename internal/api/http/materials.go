package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-study/internal/material"
	"github.com/mind-engage/mindengage-study/internal/storage"
)

// Extractor turns an upload into course material.
type Extractor interface {
	Extract(ctx context.Context, filename string, data []byte) (material.Material, error)
}

var materialKey = regexp.MustCompile(`^[0-9a-f]{64}$`)

func MountMaterials(r chi.Router, x Extractor, bs storage.BlobStore, maxBytes int64) {
	// POST /materials (multipart "file")
	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		if maxBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "file too large", Kind: "validation"})
				return
			}
			writeError(w, validationErr("file required"))
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			writeError(w, validationErr("read upload: %v", err))
			return
		}
		m, err := x.Extract(r.Context(), hdr.Filename, data)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, m)
	})

	// GET /materials/{key} returns previously extracted PDF text.
	r.Get("/{key}", func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if !materialKey.MatchString(key) {
			writeError(w, validationErr("malformed material key"))
			return
		}
		rc, err := bs.Get(material.CacheKey(key))
		if errors.Is(err, storage.ErrBlobNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "material not cached", Kind: "not_found"})
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.Copy(w, rc)
	})
}

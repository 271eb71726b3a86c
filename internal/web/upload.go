package web

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
)

// maxUploadMemory bounds the in-memory part of multipart parsing.
const maxUploadMemory = 32 << 20 // 32 MiB

// allowedUploadTypes is the declared-media-type allow-list of the gate.
var allowedUploadTypes = map[string]bool{
	"image/png":  true,
	"image/jpg":  true,
	"image/jpeg": true,
}

// Upload describes one accepted file, for the duration of the request only.
type Upload struct {
	// OriginalName is the client-supplied file name, already reduced to a
	// bare base name. It is attacker-controlled; it never forms a path on
	// its own.
	OriginalName string

	// ContentType is the media type the client declared for the file.
	// The gate validates the declaration, not the bytes.
	ContentType string

	// AssignedName is the collision-resistant storage name,
	// <ULID>-<OriginalName>. The ULID carries the upload timestamp.
	AssignedName string

	// Path is the stored file's location under the upload directory.
	Path string

	// Size is the stored size in bytes.
	Size int64
}

// UploadGate accepts at most one file per request under a fixed field name.
type UploadGate struct {
	field    string
	dir      string
	fallback *Fallback

	// rejectLoudly answers disallowed uploads with 422 instead of the
	// faithful silent drop, under which handlers cannot tell a rejected
	// file from no file at all.
	rejectLoudly bool
}

// NewUploadGate creates an UploadGate storing accepted files under dir.
// This function panics if fallback is nil.
func NewUploadGate(field, dir string, rejectLoudly bool, fallback *Fallback) *UploadGate {
	if fallback == nil {
		panic("fallback must be provided")
	}
	return &UploadGate{field: field, dir: dir, rejectLoudly: rejectLoudly, fallback: fallback}
}

// Middleware filters file uploads. Requests that are not multipart pass
// through untouched. A file with a disallowed declared type is either
// silently dropped (default) or rejected with 422, per configuration.
// An accepted file is stored and its descriptor attached to the context.
func (g *UploadGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "multipart/form-data" {
			next.ServeHTTP(w, r)
			return
		}

		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			// Unparseable body: the handler sees no file.
			next.ServeHTTP(w, r)
			return
		}

		headers := r.MultipartForm.File[g.field]
		if len(headers) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		fh := headers[0] // at most one file per request

		declared := fh.Header.Get("Content-Type")
		if !allowedUploadTypes[declared] {
			if g.rejectLoudly {
				http.Error(w, "unsupported file type", http.StatusUnprocessableEntity)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		up, err := g.save(fh, declared)
		if err != nil {
			g.fallback.ServeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withUpload(r.Context(), up)))
	})
}

func (g *UploadGate) save(fh *multipart.FileHeader, declared string) (*Upload, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	original := sanitizeFilename(fh.Filename)
	assigned := ulid.Make().String() + "-" + original

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(g.dir, assigned)
	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	size, err := io.Copy(dst, src)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	return &Upload{
		OriginalName: original,
		ContentType:  declared,
		AssignedName: assigned,
		Path:         path,
		Size:         size,
	}, nil
}

// sanitizeFilename reduces an attacker-controlled file name to a safe base
// name with no path or parent-directory components.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "/" {
		name = "upload"
	}
	return name
}

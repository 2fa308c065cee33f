package api

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/erazemk/jedilnik/internal/images"
	"github.com/erazemk/jedilnik/internal/importer"
	"github.com/erazemk/jedilnik/internal/model"
	"github.com/erazemk/jedilnik/internal/staging"
	"github.com/erazemk/jedilnik/internal/store"
)

// multipartMemory is the part of a multipart upload kept in memory.
const multipartMemory = 8 << 20

// ImportHandler stages import documents and commits them.
type ImportHandler struct {
	DB             *sql.DB
	Staging        *staging.Store
	ContentRoot    string
	MaxUploadBytes int64
}

type stagedItem struct {
	Position int        `json:"position"`
	Folder   string     `json:"folder"`
	Type     string     `json:"type"`
	Item     model.Item `json:"item"`
}

type previewResponse struct {
	Message  string       `json:"message,omitempty"`
	Batch    string       `json:"batch,omitempty"`
	StagedAt time.Time    `json:"staged_at,omitzero"`
	Items    []stagedItem `json:"items"`
	Skipped  int          `json:"skipped,omitempty"`
}

type commitResponse struct {
	Message   string         `json:"message"`
	Committed int            `json:"committed"`
	Items     []itemView     `json:"items,omitempty"`
	Images    *images.Report `json:"images,omitempty"`
}

func preview(b staging.Batch) previewResponse {
	resp := previewResponse{Batch: b.ID, StagedAt: b.StagedAt, Items: make([]stagedItem, len(b.Items))}
	for i, item := range b.Items {
		resp.Items[i] = stagedItem{
			Position: i + 1,
			Folder:   images.Folder(item, i+1),
			Type:     item.TypeTag(),
			Item:     item,
		}
	}
	return resp
}

// stagingKey scopes staged batches to the caller.
func stagingKey(r *http.Request) string {
	return strings.ToLower(GetClaims(r.Context()).Email)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// Upload handles POST /api/import. The document is either the raw request
// body or the "file" part of a multipart form.
func (h *ImportHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)

	data, err := readDocument(r)
	if err != nil {
		uploadError(w, err)
		return
	}

	result, err := importer.ParseReport(data)
	if err != nil {
		if errors.Is(err, importer.ErrFormat) {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("failed to parse import", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to parse import")
		return
	}

	key := stagingKey(r)
	unlock := h.Staging.Lock(key)
	defer unlock()

	if len(result.Items) == 0 {
		h.Staging.Clear(key)
		jsonResponse(w, http.StatusOK, previewResponse{
			Message: "No items found in the document.",
			Items:   []stagedItem{},
			Skipped: result.Skipped,
		})
		return
	}

	batch := h.Staging.Put(key, result.Items)
	slog.Info("import staged", "user", key, "batch", batch.ID, "items", len(batch.Items), "skipped", result.Skipped)

	resp := preview(batch)
	resp.Skipped = result.Skipped
	jsonResponse(w, http.StatusOK, resp)
}

func readDocument(r *http.Request) ([]byte, error) {
	if !isMultipart(r) {
		defer r.Body.Close()
		return io.ReadAll(r.Body)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, err
	}
	defer r.MultipartForm.RemoveAll()

	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func uploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		jsonError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload larger than %d bytes", tooLarge.Limit))
	case errors.Is(err, http.ErrMissingFile):
		jsonError(w, http.StatusBadRequest, "please choose a file to upload")
	default:
		jsonError(w, http.StatusBadRequest, "invalid upload")
	}
}

// Preview handles GET /api/import.
func (h *ImportHandler) Preview(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, preview(h.Staging.Get(stagingKey(r))))
}

// Clear handles DELETE /api/import.
func (h *ImportHandler) Clear(w http.ResponseWriter, r *http.Request) {
	key := stagingKey(r)
	unlock := h.Staging.Lock(key)
	defer unlock()

	h.Staging.Clear(key)
	jsonMessage(w, "Staged import cleared.")
}

// ImagesTemplate handles GET /api/import/images-template.
func (h *ImportHandler) ImagesTemplate(w http.ResponseWriter, r *http.Request) {
	batch := h.Staging.Get(stagingKey(r))
	if batch.Empty() {
		jsonError(w, http.StatusNotFound, "No items available for image template. Please upload a JSON file first.")
		return
	}

	data, err := images.TemplateZip(batch.Items)
	if err != nil {
		slog.Error("failed to build image template", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to build image template")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="images-template.zip"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Commit handles POST /api/import/commit. An optional multipart "images"
// archive is extracted first; an optional "batch" value must name the
// currently staged batch.
func (h *ImportHandler) Commit(w http.ResponseWriter, r *http.Request) {
	key := stagingKey(r)
	unlock := h.Staging.Lock(key)
	defer unlock()

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)

	var archive multipart.File
	var archiveSize int64
	if isMultipart(r) {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			uploadError(w, err)
			return
		}
		defer r.MultipartForm.RemoveAll()

		f, hdr, err := r.FormFile("images")
		switch {
		case err == nil:
			defer f.Close()
			archive, archiveSize = f, hdr.Size
		case !errors.Is(err, http.ErrMissingFile):
			uploadError(w, err)
			return
		}
	}

	batch := h.Staging.Get(key)
	if batch.Empty() {
		jsonResponse(w, http.StatusOK, commitResponse{Message: "No items to commit. Please upload a JSON file first."})
		return
	}
	if want := r.FormValue("batch"); want != "" && want != batch.ID {
		jsonError(w, http.StatusConflict, staging.ErrBatchMismatch.Error())
		return
	}

	var report *images.Report
	if archive != nil {
		rep, err := images.Extract(archive, archiveSize, h.ContentRoot, batch.ID, batch.Items)
		if err != nil {
			if errors.Is(err, images.ErrArchive) {
				jsonError(w, http.StatusBadRequest, err.Error())
				return
			}
			slog.Error("failed to extract images", "batch", batch.ID, "error", err)
			jsonError(w, http.StatusInternalServerError, "failed to extract images")
			return
		}
		report = &rep
	}

	items := images.AssignRefs(h.ContentRoot, batch.ID, batch.Items)
	committed, err := store.Commit(r.Context(), h.DB, items)
	if err != nil {
		slog.Error("failed to commit import", "user", key, "batch", batch.ID, "error", err)
		jsonError(w, http.StatusInternalServerError, "commit failed, the operation did not take effect")
		return
	}
	h.Staging.Clear(key)

	slog.Info("import committed", "user", key, "batch", batch.ID, "items", len(committed))
	jsonResponse(w, http.StatusOK, commitResponse{
		Message:   fmt.Sprintf("Committed %d item(s) to the database.", len(committed)),
		Committed: len(committed),
		Items:     itemViews(committed),
		Images:    report,
	})
}

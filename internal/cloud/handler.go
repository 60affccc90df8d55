package cloud

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/infinityhole/api/internal/middleware"
	"github.com/infinityhole/api/internal/response"
	"github.com/infinityhole/api/internal/storage"
)

// Handler holds HTTP handlers for cloud storage endpoints.
type Handler struct {
	mgr         *Manager
	maxUploadMB int
}

// NewHandler creates a new cloud Handler. Uploads larger than maxUploadMB are rejected with 413.
func NewHandler(mgr *Manager, maxUploadMB int) *Handler {
	return &Handler{mgr: mgr, maxUploadMB: maxUploadMB}
}

// Upload godoc
//
//	@Summary		Upload a file
//	@Description	Stores the multipart "file" field on the first provider with enough headroom.
//	@Tags			cloud
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			file	formData	file	true	"File to upload"
//	@Success		201		{object}	response.Envelope{data=UploadResult}
//	@Failure		400		{object}	response.Envelope
//	@Failure		401		{object}	response.Envelope
//	@Failure		413		{object}	response.Envelope
//	@Failure		502		{object}	response.Envelope
//	@Failure		503		{object}	response.Envelope
//	@Failure		507		{object}	response.Envelope
//	@Router			/cloud/files [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok || userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit := int64(h.maxUploadMB) * storage.BytesPerMB
	// leave room for multipart framing
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || r.ContentLength > limit+1<<20 {
			response.TooLarge(w, "file too large")
			return
		}
		response.BadRequest(w, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		response.BadRequest(w, "could not read upload")
		return
	}
	if int64(len(content)) > limit {
		response.TooLarge(w, "file too large")
		return
	}

	res, err := h.mgr.UploadFile(r.Context(), userID, header.Filename, content)
	if err != nil {
		writeError(w, err)
		return
	}
	response.Created(w, res)
}

// List godoc
//
//	@Summary		List files
//	@Description	Returns the caller's files across all providers.
//	@Tags			cloud
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=[]storage.FileRecord}
//	@Failure		401	{object}	response.Envelope
//	@Router			/cloud/files [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok || userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	files, err := h.mgr.ListFiles(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, files)
}

// Info godoc
//
//	@Summary		File metadata
//	@Tags			cloud
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"File ID"
//	@Success		200	{object}	response.Envelope{data=storage.FileRecord}
//	@Failure		401	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		503	{object}	response.Envelope
//	@Router			/cloud/files/{id} [get]
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok || userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	info, err := h.mgr.FileInfo(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, info)
}

// Delete godoc
//
//	@Summary		Delete a file
//	@Tags			cloud
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"File ID"
//	@Success		200	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Router			/cloud/files/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok || userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	deleted, err := h.mgr.DeleteFile(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		response.NotFound(w, "file not found")
		return
	}
	response.OK(w, map[string]bool{"success": true})
}

// Storage godoc
//
//	@Summary		Storage usage
//	@Description	Returns usage and effective limit on the caller's current provider.
//	@Tags			cloud
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=StorageInfo}
//	@Failure		401	{object}	response.Envelope
//	@Failure		503	{object}	response.Envelope
//	@Router			/cloud/storage [get]
func (h *Handler) Storage(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok || userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	info, err := h.mgr.StorageInfo(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, info)
}

// WatchAd godoc
//
//	@Summary		Record an ad watch
//	@Description	Credits bonus space on the caller's current provider.
//	@Tags			cloud
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=AdReward}
//	@Failure		401	{object}	response.Envelope
//	@Failure		503	{object}	response.Envelope
//	@Router			/cloud/ads/watch [post]
func (h *Handler) WatchAd(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok || userID == "" {
		response.Unauthorized(w, "unauthorized")
		return
	}

	reward, err := h.mgr.WatchAd(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, reward)
}

// writeError maps storage sentinels to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrQuotaExceeded):
		response.InsufficientStorage(w, "storage quota exceeded, watch an ad to earn more space")
	case errors.Is(err, storage.ErrNoProviderAvailable), errors.Is(err, storage.ErrProviderUnavailable):
		response.Unavailable(w, "storage provider unavailable")
	case errors.Is(err, storage.ErrNotFound):
		response.NotFound(w, "file not found")
	case errors.Is(err, storage.ErrUploadFailed):
		slog.Error("cloud: upload failed", "error", err)
		response.BadGateway(w, "upload to storage provider failed")
	default:
		slog.Error("cloud: request failed", "error", err)
		response.InternalError(w)
	}
}

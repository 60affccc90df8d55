package media

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/infinityhole/api/internal/response"
)

// Handler holds HTTP handlers for media endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new media Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type extractRequest struct {
	URL string `json:"url" example:"https://www.youtube.com/watch?v=dQw4w9WgXcQ"`
}

// Extract godoc
//
//	@Summary		Extract video info
//	@Description	Returns title, duration, thumbnail and the downloadable formats of a video.
//	@Tags			media
//	@Accept			json
//	@Produce		json
//	@Param			request	body		extractRequest	true	"Video URL"
//	@Success		200		{object}	response.Envelope{data=VideoInfo}
//	@Failure		400		{object}	response.Envelope
//	@Router			/media/extract [post]
func (h *Handler) Extract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := response.Decode(w, r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		response.BadRequest(w, "url is required")
		return
	}

	info, err := h.svc.Extract(r.Context(), req.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, info)
}

// Download godoc
//
//	@Summary		Download a video
//	@Description	Downloads one format, optionally trims it and converts it to audio, and returns a link to the result.
//	@Tags			media
//	@Accept			json
//	@Produce		json
//	@Param			request	body		DownloadRequest	true	"Download options"
//	@Success		200		{object}	response.Envelope{data=DownloadResult}
//	@Failure		400		{object}	response.Envelope
//	@Failure		413		{object}	response.Envelope
//	@Failure		502		{object}	response.Envelope
//	@Router			/media/download [post]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := response.Decode(w, r, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		response.BadRequest(w, "url is required")
		return
	}

	res, err := h.svc.Download(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	response.OK(w, res)
}

// ServeFile godoc
//
//	@Summary		Fetch a finished download
//	@Tags			media
//	@Produce		octet-stream
//	@Param			filename	path	string	true	"File name returned by /media/download"
//	@Success		200
//	@Failure		404	{object}	response.Envelope
//	@Router			/downloads/{filename} [get]
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	path, err := h.svc.Open(name)
	if err != nil {
		response.NotFound(w, "file not found")
		return
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeFile(w, r, path)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidURL):
		response.BadRequest(w, "invalid url")
	case errors.Is(err, ErrDomainNotAllowed):
		response.BadRequest(w, "domain not allowed")
	case errors.Is(err, ErrInvalidRequest):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrTooLarge):
		response.TooLarge(w, "file too large")
	case errors.Is(err, ErrExtractFailed):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrDownloadFailed), errors.Is(err, ErrTranscodeFailed):
		slog.Error("media: download failed", "error", err)
		response.BadGateway(w, err.Error())
	case errors.Is(err, os.ErrNotExist):
		response.NotFound(w, "file not found")
	default:
		slog.Error("media: request failed", "error", err)
		response.InternalError(w)
	}
}

package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/decodebeauty/decode-server/internal/domain"
	"github.com/decodebeauty/decode-server/internal/service"
)

const maxVideoUpload = 512 << 20 // 512 MiB

// VideoHandler serves confirmation-video upload, playback, and watch
// confirmation. The bearer credential on these routes is the video
// token itself, so they sit outside the JWT chain.
type VideoHandler struct {
	videos *service.VideoService
	logger *slog.Logger
}

// NewVideoHandler creates a VideoHandler.
func NewVideoHandler(videos *service.VideoService, logger *slog.Logger) *VideoHandler {
	return &VideoHandler{videos: videos, logger: logger}
}

type videoTokenResponse struct {
	AuctionID  string     `json:"auction_id"`
	ExpiresAt  time.Time  `json:"expires_at"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`
	WatchedAt  *time.Time `json:"watched_at,omitempty"`
}

func toVideoTokenResponse(t domain.VideoToken) videoTokenResponse {
	return videoTokenResponse{
		AuctionID:  t.AuctionID,
		ExpiresAt:  t.ExpiresAt,
		UploadedAt: t.UploadedAt,
		WatchedAt:  t.WatchedAt,
	}
}

// GetToken returns the state of an upload token.
// GET /api/videos/{token}
func (h *VideoHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	token := pathParam(r, "token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}
	tok, err := h.videos.GetToken(r.Context(), token)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVideoTokenResponse(tok))
}

// Upload streams the request body into blob storage under a live
// token.
// PUT /api/videos/{token}
func (h *VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	token := pathParam(r, "token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" || !strings.HasPrefix(contentType, "video/") {
		writeError(w, http.StatusUnsupportedMediaType, "content type must be video/*")
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxVideoUpload)
	tok, err := h.videos.Upload(r.Context(), token, body, contentType)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: video upload rejected",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVideoTokenResponse(tok))
}

// MarkWatched records that the professional confirmed the video.
// POST /api/videos/{token}/watched
func (h *VideoHandler) MarkWatched(w http.ResponseWriter, r *http.Request) {
	token := pathParam(r, "token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}
	tok, err := h.videos.MarkWatched(r.Context(), token)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVideoTokenResponse(tok))
}

// Stream serves the stored video, honoring a single bytes range.
// GET /api/videos/{token}/stream
func (h *VideoHandler) Stream(w http.ResponseWriter, r *http.Request) {
	token := pathParam(r, "token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing token")
		return
	}

	offset, length, partial, err := parseRangeHeader(r.Header.Get("Range"))
	if err != nil {
		writeError(w, http.StatusRequestedRangeNotSatisfiable, "unsupported range")
		return
	}

	rc, err := h.videos.Stream(r.Context(), token, offset, length)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Accept-Ranges", "bytes")
	status := http.StatusOK
	if partial {
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "handler: video stream interrupted",
			slog.String("error", err.Error()),
		)
	}
}

// parseRangeHeader handles the "bytes=start-" and "bytes=start-end"
// forms. Multi-range and suffix requests are refused.
func parseRangeHeader(header string) (offset, length int64, partial bool, err error) {
	if header == "" {
		return 0, 0, false, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, 0, false, http.ErrNotSupported
	}
	start, end, ok := strings.Cut(spec, "-")
	if !ok || start == "" {
		return 0, 0, false, http.ErrNotSupported
	}
	offset, err = strconv.ParseInt(start, 10, 64)
	if err != nil || offset < 0 {
		return 0, 0, false, http.ErrNotSupported
	}
	if end != "" {
		last, perr := strconv.ParseInt(end, 10, 64)
		if perr != nil || last < offset {
			return 0, 0, false, http.ErrNotSupported
		}
		length = last - offset + 1
	}
	return offset, length, true, nil
}

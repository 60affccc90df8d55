package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Format is one downloadable rendition of a video.
type Format struct {
	ID         string  `json:"formatId"`
	Ext        string  `json:"ext"`
	Resolution string  `json:"resolution,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
	VCodec     string  `json:"vcodec,omitempty"`
	ACodec     string  `json:"acodec,omitempty"`
	FileSize   int64   `json:"filesize,omitempty"`
	Note       string  `json:"note,omitempty"`
}

// HasVideo reports whether the format carries a video stream.
func (f Format) HasVideo() bool { return f.VCodec != "" && f.VCodec != "none" }

// HasAudio reports whether the format carries an audio stream.
func (f Format) HasAudio() bool { return f.ACodec != "" && f.ACodec != "none" }

// VideoInfo is the metadata returned by Extract.
type VideoInfo struct {
	ID        string   `json:"id,omitempty"`
	Title     string   `json:"title"`
	Uploader  string   `json:"uploader,omitempty"`
	Duration  float64  `json:"duration,omitempty"`
	Thumbnail string   `json:"thumbnail,omitempty"`
	Formats   []Format `json:"formats"`
}

// ytdlpInfo mirrors the subset of `yt-dlp --dump-single-json` output we use.
type ytdlpInfo struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Uploader  string  `json:"uploader"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
	Formats   []struct {
		FormatID       string  `json:"format_id"`
		Ext            string  `json:"ext"`
		Resolution     string  `json:"resolution"`
		FPS            float64 `json:"fps"`
		VCodec         string  `json:"vcodec"`
		ACodec         string  `json:"acodec"`
		FileSize       float64 `json:"filesize"`
		FileSizeApprox float64 `json:"filesize_approx"`
		FormatNote     string  `json:"format_note"`
	} `json:"formats"`
}

// Extractor drives yt-dlp.
type Extractor struct {
	runner Runner
	bin    string
}

// NewExtractor creates an Extractor that invokes bin through runner.
func NewExtractor(runner Runner, bin string) *Extractor {
	return &Extractor{runner: runner, bin: bin}
}

// Extract fetches metadata for url. Formats with neither audio nor video are dropped.
func (e *Extractor) Extract(ctx context.Context, url string) (*VideoInfo, error) {
	out, err := e.runner.Run(ctx, e.bin,
		"--dump-single-json",
		"--no-playlist",
		"--no-warnings",
		"--skip-download",
		"--retries", "3",
		"--",
		url,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrExtractFailed, explain(err))
	}

	var raw ytdlpInfo
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode metadata: %v", ErrExtractFailed, err)
	}

	info := &VideoInfo{
		ID:        raw.ID,
		Title:     raw.Title,
		Uploader:  raw.Uploader,
		Duration:  raw.Duration,
		Thumbnail: raw.Thumbnail,
		Formats:   []Format{},
	}
	if info.Title == "" {
		info.Title = "Unknown"
	}
	for _, f := range raw.Formats {
		size := f.FileSize
		if size == 0 {
			size = f.FileSizeApprox
		}
		ext := f.Ext
		if ext == "" {
			ext = "unknown"
		}
		format := Format{
			ID:         f.FormatID,
			Ext:        ext,
			Resolution: f.Resolution,
			FPS:        f.FPS,
			VCodec:     f.VCodec,
			ACodec:     f.ACodec,
			FileSize:   int64(size),
			Note:       f.FormatNote,
		}
		if !format.HasVideo() && !format.HasAudio() {
			continue
		}
		info.Formats = append(info.Formats, format)
	}
	return info, nil
}

// Download fetches url in formatID to outTemplate (a yt-dlp output template).
// mergeFormat, when set, is the container used if yt-dlp has to merge streams.
func (e *Extractor) Download(ctx context.Context, url, formatID, outTemplate, mergeFormat string) error {
	args := []string{
		"-f", formatID,
		"-o", outTemplate,
		"--no-playlist",
		"--no-warnings",
		"--no-part",
		"--quiet",
		"--retries", "3",
	}
	if mergeFormat != "" {
		args = append(args, "--merge-output-format", mergeFormat)
	}
	args = append(args, "--", url)

	if _, err := e.runner.Run(ctx, e.bin, args...); err != nil {
		return fmt.Errorf("%w: %s", ErrDownloadFailed, explain(err))
	}
	return nil
}

// explain turns a yt-dlp failure into a user-facing reason.
func explain(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	msg := err.Error()
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.Stderr != "" {
		msg = cmdErr.Stderr
	}
	switch {
	case strings.Contains(msg, "Sign in to confirm your age"):
		return "this video is age-restricted and cannot be downloaded"
	case strings.Contains(msg, "Private video"), strings.Contains(msg, "Video unavailable"):
		return "this video is unavailable or private"
	case strings.Contains(msg, "HTTP Error 403"):
		return "access denied, this video may be restricted"
	case strings.Contains(msg, "HTTP Error 404"):
		return "video not found, please check the URL"
	case strings.Contains(msg, "Requested format is not available"):
		return "requested format is not available"
	}
	if i := strings.LastIndex(msg, "ERROR:"); i >= 0 {
		msg = strings.TrimSpace(msg[i+len("ERROR:"):])
	}
	return msg
}

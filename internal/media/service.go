package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidURL       = errors.New("invalid url")
	ErrDomainNotAllowed = errors.New("domain not allowed")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrTooLarge         = errors.New("file too large")
	ErrExtractFailed    = errors.New("failed to extract video info")
	ErrDownloadFailed   = errors.New("download failed")
	ErrTranscodeFailed  = errors.New("conversion failed")
)

// outputFormats lists accepted output formats; true marks audio-only.
var outputFormats = map[string]bool{
	"mp4":  false,
	"webm": false,
	"mkv":  false,
	"mp3":  true,
	"m4a":  true,
}

// DownloadRequest describes one download job.
type DownloadRequest struct {
	URL          string `json:"url"          example:"https://www.youtube.com/watch?v=dQw4w9WgXcQ"`
	FormatID     string `json:"formatId"     example:"18"`
	OutputFormat string `json:"outputFormat" example:"mp4"`
	Start        string `json:"start,omitempty" example:"0:30"`
	End          string `json:"end,omitempty"   example:"1:15"`
}

// DownloadResult points at the finished file.
type DownloadResult struct {
	DownloadURL string `json:"downloadUrl"`
	Filename    string `json:"filename"`
	FileSize    int64  `json:"fileSize"`
}

// Config tunes the Service.
type Config struct {
	Dir            string
	PublicPath     string // URL prefix the download dir is served under
	MaxBytes       int64
	AllowedDomains []string
	Timeout        time.Duration
}

// Service validates requests and runs the extract/download/convert pipeline.
type Service struct {
	ext     *Extractor
	tc      *Transcoder
	cfg     Config
	nowFunc func() time.Time
}

// NewService creates the download directory and returns a Service.
func NewService(ext *Extractor, tc *Transcoder, cfg Config) (*Service, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	cfg.PublicPath = "/" + strings.Trim(cfg.PublicPath, "/")
	return &Service{ext: ext, tc: tc, cfg: cfg, nowFunc: time.Now}, nil
}

// Dir is the directory finished downloads are written to.
func (s *Service) Dir() string { return s.cfg.Dir }

// CheckURL accepts only http(s) URLs whose host is, or is a subdomain of, an allowed domain.
func (s *Service) CheckURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return ErrInvalidURL
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	for _, d := range s.cfg.AllowedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrDomainNotAllowed, host)
}

// Extract returns metadata and available formats for url.
func (s *Service) Extract(ctx context.Context, rawURL string) (*VideoInfo, error) {
	if err := s.CheckURL(rawURL); err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	slog.Info("media: extracting", "url", rawURL)
	return s.ext.Extract(ctx, strings.TrimSpace(rawURL))
}

// Download fetches, optionally trims and converts, and size-checks one video.
// The finished file always carries the requested format's extension.
// Intermediate files are removed; on failure nothing is left behind.
func (s *Service) Download(ctx context.Context, req DownloadRequest) (*DownloadResult, error) {
	if err := s.CheckURL(req.URL); err != nil {
		return nil, err
	}

	format := strings.ToLower(strings.TrimSpace(req.OutputFormat))
	if format == "" {
		format = "mp4"
	}
	audio, ok := outputFormats[format]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported output format %q", ErrInvalidRequest, req.OutputFormat)
	}

	start, err := ParseTimestamp(req.Start)
	if err != nil {
		return nil, fmt.Errorf("%w: start: %v", ErrInvalidRequest, err)
	}
	end, err := ParseTimestamp(req.End)
	if err != nil {
		return nil, fmt.Errorf("%w: end: %v", ErrInvalidRequest, err)
	}
	if end > 0 && end <= start {
		return nil, fmt.Errorf("%w: end must be after start", ErrInvalidRequest)
	}
	trim := start > 0 || end > 0

	formatID := strings.TrimSpace(req.FormatID)
	if formatID == "" {
		formatID = "best"
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	base := s.baseName()
	done := false
	defer func() {
		if !done {
			s.removeByPrefix(base)
		}
	}()

	merge := ""
	if !audio {
		merge = format
	}
	srcTemplate := filepath.Join(s.cfg.Dir, base+".src.%(ext)s")
	if err := s.ext.Download(ctx, strings.TrimSpace(req.URL), formatID, srcTemplate, merge); err != nil {
		return nil, err
	}
	cur, err := s.findDownloaded(base + ".src.")
	if err != nil {
		return nil, err
	}

	if trim {
		cut := filepath.Join(s.cfg.Dir, base+".cut"+filepath.Ext(cur))
		if err := s.tc.Cut(ctx, cur, cut, start, end); err != nil {
			return nil, err
		}
		_ = os.Remove(cur)
		cur = cut
	}

	if audio {
		out := filepath.Join(s.cfg.Dir, base+".conv."+format)
		if err := s.tc.ToAudio(ctx, cur, out, format); err != nil {
			return nil, err
		}
		_ = os.Remove(cur)
		cur = out
	}

	if !audio && !strings.EqualFold(filepath.Ext(cur), "."+format) {
		out := filepath.Join(s.cfg.Dir, base+".remux."+format)
		if err := s.tc.Remux(ctx, cur, out); err != nil {
			return nil, err
		}
		_ = os.Remove(cur)
		cur = out
	}

	final := filepath.Join(s.cfg.Dir, base+"."+format)
	if err := os.Rename(cur, final); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	info, err := os.Stat(final)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if s.cfg.MaxBytes > 0 && info.Size() > s.cfg.MaxBytes {
		return nil, ErrTooLarge
	}

	done = true
	name := filepath.Base(final)
	slog.Info("media: downloaded", "file", name, "size", info.Size(), "format", format, "trimmed", trim)
	return &DownloadResult{
		DownloadURL: s.cfg.PublicPath + "/" + url.PathEscape(name),
		Filename:    name,
		FileSize:    info.Size(),
	}, nil
}

// Open returns the path of a finished download, rejecting anything outside the directory.
func (s *Service) Open(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", os.ErrNotExist
	}
	path := filepath.Join(s.cfg.Dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", os.ErrNotExist
	}
	return path, nil
}

// baseName returns video_<YYYYmmdd_HHMMSS>_<8 random hex>.
func (s *Service) baseName() string {
	return fmt.Sprintf("video_%s_%s", s.nowFunc().Format("20060102_150405"), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *Service) findDownloaded(prefix string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.cfg.Dir, prefix+"*"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	for _, m := range matches {
		if strings.HasSuffix(m, ".part") || strings.HasSuffix(m, ".ytdl") {
			continue
		}
		return m, nil
	}
	return "", fmt.Errorf("%w: no file was downloaded", ErrDownloadFailed)
}

func (s *Service) removeByPrefix(base string) {
	matches, _ := filepath.Glob(filepath.Join(s.cfg.Dir, base+"*"))
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("media: remove partial file", "path", m, "error", err)
		}
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

// ParseTimestamp accepts "", "SS", "MM:SS" or "HH:MM:SS"; seconds may be fractional.
func ParseTimestamp(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}

	var total float64
	for i, p := range parts {
		last := i == len(parts)-1
		var v float64
		var err error
		if last {
			v, err = strconv.ParseFloat(p, 64)
		} else {
			var n int
			n, err = strconv.Atoi(p)
			v = float64(n)
		}
		if err != nil || v < 0 || (i > 0 && v >= 60) {
			return 0, fmt.Errorf("bad timestamp %q", s)
		}
		total = total*60 + v
	}
	return time.Duration(total * float64(time.Second)), nil
}

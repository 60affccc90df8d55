package media

import (
	"bytes"
	"context"
	"errors"
	"os"
	"slices"
	"strings"
	"sync"
)

const sampleInfo = `{
  "id": "abc123",
  "title": "Sample clip",
  "uploader": "someone",
  "duration": 212,
  "thumbnail": "https://i.example.com/abc123.jpg",
  "formats": [
    {"format_id": "sb0", "ext": "mhtml", "vcodec": "none", "acodec": "none", "format_note": "storyboard"},
    {"format_id": "140", "ext": "m4a", "vcodec": "none", "acodec": "mp4a.40.2", "filesize": 3400000, "format_note": "medium"},
    {"format_id": "18", "ext": "mp4", "resolution": "640x360", "fps": 30, "vcodec": "avc1.42001E", "acodec": "mp4a.40.2", "filesize_approx": 9100000},
    {"format_id": "137", "ext": "mp4", "resolution": "1920x1080", "fps": 30, "vcodec": "avc1.640028", "acodec": "none", "filesize": 51000000}
  ]
}`

// fakeRunner stands in for yt-dlp and ffmpeg. Downloads and conversions write
// size bytes to the output path the real tool would have produced.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string

	info    string
	size    int
	srcExt  string
	failOn  string // program name whose invocation fails
	failErr error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()

	if name == f.failOn {
		err := f.failErr
		if err == nil {
			err = errors.New("exit status 1")
		}
		return nil, err
	}

	switch name {
	case "yt-dlp":
		if slices.Contains(args, "--dump-single-json") {
			return []byte(f.info), nil
		}
		ext := "webm"
		if i := slices.Index(args, "--merge-output-format"); i >= 0 {
			ext = args[i+1]
		}
		if f.srcExt != "" {
			// a single-file format is written in its native container
			ext = f.srcExt
		}
		out := strings.ReplaceAll(args[slices.Index(args, "-o")+1], "%(ext)s", ext)
		return nil, f.write(out)
	case "ffmpeg":
		return nil, f.write(args[len(args)-1])
	}
	return nil, errors.New("unknown program " + name)
}

func (f *fakeRunner) write(path string) error {
	return os.WriteFile(path, bytes.Repeat([]byte("x"), f.size), 0o644)
}

// call returns the first recorded invocation of name.
func (f *fakeRunner) call(name string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c[0] == name {
			return c[1:]
		}
	}
	return nil
}

func (f *fakeRunner) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c[0] == name {
			n++
		}
	}
	return n
}

package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/memesrc/memesrc/internal/frame"
)

// ExtractOptions describes one episode to cut into frames.
type ExtractOptions struct {
	Input string
	Root  string
	// Episode names the series, season and episode; its frame number is
	// ignored.
	Episode frame.ID
	FPS     float64
	// Width scales frames keeping the aspect ratio; 0 keeps the source size.
	Width int
	// Quality is the JPEG qscale, 2 (best) to 31.
	Quality int
}

type ExtractResult struct {
	Dir    string
	Frames int
}

// OutputPattern is the ffmpeg output pattern for an episode. Frame numbers
// start at 1, matching the identifier convention.
func OutputPattern(root string, ep frame.ID) string {
	name := fmt.Sprintf("%s-%d-%d-%%d.jpg", ep.SeriesID, ep.Season, ep.Episode)
	return filepath.Join(root, filepath.FromSlash(ep.Dir()), name)
}

func (o ExtractOptions) validate() error {
	if o.Input == "" {
		return fmt.Errorf("ffmpeg: input path is required")
	}
	if o.Root == "" {
		return fmt.Errorf("ffmpeg: media root is required")
	}
	if o.Episode.SeriesID == "" || strings.Contains(o.Episode.SeriesID, "-") {
		return fmt.Errorf("ffmpeg: series id %q must be non-empty and free of hyphens", o.Episode.SeriesID)
	}
	if o.FPS <= 0 {
		return fmt.Errorf("ffmpeg: fps must be positive, got %v", o.FPS)
	}
	if o.Quality != 0 && (o.Quality < 2 || o.Quality > 31) {
		return fmt.Errorf("ffmpeg: quality must be between 2 and 31, got %d", o.Quality)
	}
	return nil
}

func buildExtractArgs(o ExtractOptions) []string {
	filter := "fps=" + strconv.FormatFloat(o.FPS, 'f', -1, 64)
	if o.Width > 0 {
		filter += fmt.Sprintf(",scale=%d:-2", o.Width)
	}
	quality := o.Quality
	if quality == 0 {
		quality = 3
	}
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", o.Input,
		"-vf", filter,
		"-q:v", strconv.Itoa(quality),
		"-start_number", "1",
		OutputPattern(o.Root, o.Episode),
	}
}

// Extract writes the frames of an episode under the media root.
func Extract(ctx context.Context, ffmpegPath string, o ExtractOptions) (*ExtractResult, error) {
	if ffmpegPath == "" {
		return nil, fmt.Errorf("ffmpeg: path is empty")
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	dir := filepath.Join(o.Root, filepath.FromSlash(o.Episode.Dir()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, ffmpegPath, buildExtractArgs(o)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w (output: %s)", err, strings.TrimSpace(stderr.String()))
	}

	n, err := countFrames(dir, o.Episode)
	if err != nil {
		return nil, err
	}
	return &ExtractResult{Dir: dir, Frames: n}, nil
}

func countFrames(dir string, ep frame.ID) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	prefix := fmt.Sprintf("%s-%d-%d-", ep.SeriesID, ep.Season, ep.Episode)
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ".jpg") {
			n++
		}
	}
	return n, nil
}

type formatOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration returns the length of a media file in seconds using ffprobe.
func Duration(ctx context.Context, ffprobePath, input string) (float64, error) {
	if ffprobePath == "" {
		return 0, fmt.Errorf("ffprobe: path is empty")
	}
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		input,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseDuration(out)
}

func parseDuration(out []byte) (float64, error) {
	var meta formatOutput
	if err := json.Unmarshal(out, &meta); err != nil {
		return 0, fmt.Errorf("ffprobe: decode output: %w", err)
	}
	if meta.Format.Duration == "" {
		return 0, fmt.Errorf("ffprobe: no duration reported")
	}
	return strconv.ParseFloat(meta.Format.Duration, 64)
}

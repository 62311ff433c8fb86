package subtitle

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/memesrc/memesrc/internal/frame"
)

// Cue is one SRT entry.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// ParseSRT reads SubRip cues. Blank-line separated blocks without a timing
// line are skipped.
func ParseSRT(r io.Reader) ([]Cue, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		cues  []Cue
		block []string
	)
	flush := func() error {
		defer func() { block = block[:0] }()
		if len(block) == 0 {
			return nil
		}
		cue, ok, err := parseBlock(block)
		if err != nil {
			return err
		}
		if ok {
			cues = append(cues, cue)
		}
		return nil
	}

	first := true
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		block = append(block, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return cues, nil
}

func parseBlock(lines []string) (Cue, bool, error) {
	var cue Cue
	i := 0
	if n, err := strconv.Atoi(strings.TrimSpace(lines[0])); err == nil {
		cue.Index = n
		i++
	}
	if i >= len(lines) || !strings.Contains(lines[i], "-->") {
		return Cue{}, false, nil
	}

	start, end, ok := strings.Cut(lines[i], "-->")
	if !ok {
		return Cue{}, false, nil
	}
	var err error
	if cue.Start, err = parseTimestamp(start); err != nil {
		return Cue{}, false, err
	}
	// Position hints may follow the end timestamp.
	endFields := strings.Fields(end)
	if len(endFields) == 0 {
		return Cue{}, false, fmt.Errorf("subtitle: missing end time in %q", lines[i])
	}
	if cue.End, err = parseTimestamp(endFields[0]); err != nil {
		return Cue{}, false, err
	}
	cue.Text = strings.Join(lines[i+1:], "\n")
	return cue, true, nil
}

// parseTimestamp parses HH:MM:SS,mmm (a '.' separator is accepted too).
func parseTimestamp(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.Replace(s, ",", ".", 1))
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("subtitle: invalid timestamp %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("subtitle: invalid timestamp %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("subtitle: invalid timestamp %q: %w", s, err)
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("subtitle: invalid timestamp %q: %w", s, err)
	}
	total := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(math.Round(sec*1000))*time.Millisecond
	return total, nil
}

// FrameAt is the number of the extracted frame on screen at t when frames
// were extracted at fps, numbering from 1.
func FrameAt(t time.Duration, fps float64) int {
	return int(math.Floor(t.Seconds()*fps)) + 1
}

// FromCues maps cues onto frame ranges of the episode named by ep (its
// Frame field is ignored).
func FromCues(cues []Cue, ep frame.ID, fps float64) []Subtitle {
	out := make([]Subtitle, 0, len(cues))
	for _, c := range cues {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		start := FrameAt(c.Start, fps)
		end := FrameAt(c.End, fps)
		if end < start {
			end = start
		}
		out = append(out, Subtitle{
			SeriesID:   ep.SeriesID,
			Season:     ep.Season,
			Episode:    ep.Episode,
			StartFrame: start,
			EndFrame:   end,
			Text:       text,
		})
	}
	return out
}

// Writer persists the subtitles of an episode, replacing earlier ones.
type Writer interface {
	ReplaceEpisodeSubtitles(ctx context.Context, seriesID string, season, episode int, subs []Subtitle) error
}

// ImportSRT loads an SRT file and stores it for the episode.
func ImportSRT(ctx context.Context, w Writer, path string, ep frame.ID, fps float64) (int, error) {
	if fps <= 0 {
		return 0, fmt.Errorf("subtitle: fps must be positive, got %v", fps)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	cues, err := ParseSRT(f)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	subs := FromCues(cues, ep, fps)
	if err := w.ReplaceEpisodeSubtitles(ctx, ep.SeriesID, ep.Season, ep.Episode, subs); err != nil {
		return 0, err
	}
	return len(subs), nil
}

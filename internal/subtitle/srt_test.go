package subtitle

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/memesrc/memesrc/internal/frame"
)

const sample = "\ufeff1\r\n00:00:01,000 --> 00:00:02,500\r\nHello there.\r\n\r\n" +
	"2\n00:00:03,000 --> 00:00:04,000 X1:10 X2:20\nGeneral\nKenobi!\n\n" +
	"3\n00:00:05,000 --> 00:00:05,100\n   \n"

func TestParseSRT(t *testing.T) {
	cues, err := ParseSRT(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("ParseSRT() error = %v", err)
	}
	if len(cues) != 3 {
		t.Fatalf("len = %d, want 3", len(cues))
	}
	if cues[0].Index != 1 || cues[0].Start != time.Second || cues[0].End != 2500*time.Millisecond || cues[0].Text != "Hello there." {
		t.Fatalf("cue 0 = %+v", cues[0])
	}
	if cues[1].Text != "General\nKenobi!" || cues[1].End != 4*time.Second {
		t.Fatalf("cue 1 = %+v", cues[1])
	}
}

func TestParseSRTInvalidTimestamp(t *testing.T) {
	if _, err := ParseSRT(strings.NewReader("1\n00:00:xx,000 --> 00:00:01,000\nhi\n")); err == nil {
		t.Fatal("expected error")
	}
}

func TestFromCues(t *testing.T) {
	cues, err := ParseSRT(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("ParseSRT() error = %v", err)
	}
	subs := FromCues(cues, frame.ID{SeriesID: "sw", Season: 4, Episode: 1}, 10)
	if len(subs) != 2 {
		t.Fatalf("len = %d, want 2 (blank cue dropped)", len(subs))
	}
	if subs[0].StartFrame != 11 || subs[0].EndFrame != 26 {
		t.Fatalf("sub 0 frames = %d..%d, want 11..26", subs[0].StartFrame, subs[0].EndFrame)
	}
	if !subs[1].Covers(frame.ID{SeriesID: "sw", Season: 4, Episode: 1, Frame: 35}) {
		t.Fatal("sub 1 should cover frame 35")
	}
}

type recordingWriter struct {
	subs []Subtitle
}

func (w *recordingWriter) ReplaceEpisodeSubtitles(_ context.Context, _ string, _, _ int, subs []Subtitle) error {
	w.subs = subs
	return nil
}

func TestImportSRT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ep.srt")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	w := &recordingWriter{}
	n, err := ImportSRT(context.Background(), w, path, frame.ID{SeriesID: "sw", Season: 4, Episode: 1}, 10)
	if err != nil {
		t.Fatalf("ImportSRT() error = %v", err)
	}
	if n != 2 || len(w.subs) != 2 {
		t.Fatalf("imported %d (%d stored), want 2", n, len(w.subs))
	}
	if _, err := ImportSRT(context.Background(), w, path, frame.ID{SeriesID: "sw"}, 0); err == nil {
		t.Fatal("expected error for zero fps")
	}
}

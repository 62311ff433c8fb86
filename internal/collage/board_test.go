package collage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"
	"time"
)

var (
	red   = color.RGBA{R: 255, A: 255}
	green = color.RGBA{G: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
)

// slotColors samples the middle of every slot of a collage of equal-height
// images.
func slotColors(t *testing.T, res *Result, n, slotHeight, border int) []color.RGBA {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(res.PNG))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out := make([]color.RGBA, n)
	for i := range out {
		y := border + i*(slotHeight+border) + slotHeight/2
		out[i] = color.RGBAModel.Convert(img.At(img.Bounds().Dx()/2, y)).(color.RGBA)
	}
	return out
}

func TestBoardEdits(t *testing.T) {
	ctx := context.Background()
	comp := NewCompositor(Options{MaxWidth: 40, Border: 4}, nil)
	board := NewBoard(comp, solidSource(40, 20, red), solidSource(40, 20, green))

	res, err := board.Insert(ctx, 2, solidSource(40, 20, blue))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	assertColors(t, slotColors(t, res, 3, 20, 4), red, green, blue)

	res, err = board.MoveUp(ctx, 2)
	if err != nil {
		t.Fatalf("MoveUp() error = %v", err)
	}
	assertColors(t, slotColors(t, res, 3, 20, 4), red, blue, green)

	res, err = board.MoveDown(ctx, 0)
	if err != nil {
		t.Fatalf("MoveDown() error = %v", err)
	}
	assertColors(t, slotColors(t, res, 3, 20, 4), blue, red, green)

	res, err = board.Delete(ctx, 1)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	assertColors(t, slotColors(t, res, 2, 20, 4), blue, green)
	if board.Len() != 2 || board.Latest() != res {
		t.Fatal("board state not updated after delete")
	}

	if _, err := board.Delete(ctx, 5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("Delete(5) error = %v, want ErrIndexOutOfRange", err)
	}
	if _, err := board.Insert(ctx, -1, solidSource(40, 20, red)); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("Insert(-1) error = %v, want ErrIndexOutOfRange", err)
	}
	if board.Len() != 2 {
		t.Fatal("failed edit must not change the board")
	}
}

func TestBoardItems(t *testing.T) {
	board := NewBoard(NewCompositor(DefaultOptions(), nil), FileSource("a.jpg"), FileSource("b.jpg"))

	items := board.Items()
	if len(items) != 2 || items[0] != FileSource("a.jpg") || items[1] != FileSource("b.jpg") {
		t.Fatalf("Items() = %v", items)
	}
	items[0] = FileSource("changed.jpg")
	if board.Items()[0] != FileSource("a.jpg") {
		t.Fatal("Items() must return a copy")
	}
}

func TestBoardDeleteLast(t *testing.T) {
	board := NewBoard(NewCompositor(DefaultOptions(), nil), solidSource(10, 10, red))
	res, err := board.Delete(context.Background(), 0)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if res != nil || board.Latest() != nil {
		t.Fatal("empty board should have no composition")
	}
}

func TestBoardIgnoresStaleComposition(t *testing.T) {
	ctx := context.Background()
	comp := NewCompositor(Options{MaxWidth: 20, Border: 1}, nil)

	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	slow := SourceFunc(func(ctx context.Context) (image.Image, error) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		return solid(20, 10, red), nil
	})
	board := NewBoard(comp, slow)

	first := make(chan *Result, 1)
	go func() {
		res, err := board.Recompose(ctx)
		if err != nil {
			t.Errorf("Recompose() error = %v", err)
		}
		first <- res
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first composition never started")
	}

	second, err := board.Insert(ctx, 1, solidSource(20, 10, green))
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if board.Latest() != second {
		t.Fatal("newer composition should be current")
	}

	close(release)
	old := <-first
	if old == nil || old.Height == second.Height {
		t.Fatal("stale composition should describe the older board")
	}
	if board.Latest() != second {
		t.Fatal("stale composition replaced a newer one")
	}
}

func assertColors(t *testing.T, got []color.RGBA, want ...color.RGBA) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d slots, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("slot %d = %v, want %v", i, got[i], want[i])
		}
	}
}

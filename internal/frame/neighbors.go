package frame

import "fmt"

const (
	// SetSize is the number of descriptors in every neighbour set.
	SetSize = 9
	center  = SetSize / 2

	SurroundingStride = 9
	FineTuningStride  = 1
)

// Descriptor is a frame identifier together with its image path.
type Descriptor struct {
	ID
	FID       string `json:"fid"`
	ImagePath string `json:"imagePath"`
}

// Describe builds the descriptor for id.
func Describe(id ID) Descriptor {
	return Descriptor{
		ID:        id,
		FID:       id.String(),
		ImagePath: id.ImagePath(),
	}
}

// Neighbors returns nine descriptors spaced stride frames apart with the
// frame named by fid at index 4. Frame numbers are not clamped to the
// episode, so entries before the first or past the last frame are returned
// as-is and may not exist on disk.
func Neighbors(fid string, stride int) ([]Descriptor, error) {
	if stride <= 0 {
		return nil, fmt.Errorf("frame: stride must be positive, got %d", stride)
	}
	id, err := Parse(fid)
	if err != nil {
		return nil, err
	}
	return neighbors(id, stride), nil
}

func neighbors(id ID, stride int) []Descriptor {
	out := make([]Descriptor, SetSize)
	for i := range out {
		offset := (i - center) * stride
		out[i] = Describe(id.WithFrame(id.Frame + offset))
	}
	return out
}

// View is everything a frame page needs besides the subtitle.
type View struct {
	Frame       Descriptor   `json:"frame"`
	Surrounding []Descriptor `json:"surrounding"`
	FineTuning  []Descriptor `json:"fineTuning"`
}

// NewView parses fid and derives the surrounding and fine-tuning sets.
func NewView(fid string) (View, error) {
	id, err := Parse(fid)
	if err != nil {
		return View{}, err
	}
	return View{
		Frame:       Describe(id),
		Surrounding: neighbors(id, SurroundingStride),
		FineTuning:  neighbors(id, FineTuningStride),
	}, nil
}

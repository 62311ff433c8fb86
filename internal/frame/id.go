package frame

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// ErrMalformedIdentifier is returned for identifiers that do not have the
// form series-season-episode-frame.
var ErrMalformedIdentifier = errors.New("frame: malformed identifier")

// ID is a parsed frame identifier.
type ID struct {
	SeriesID string `json:"seriesId"`
	Season   int    `json:"season"`
	Episode  int    `json:"episode"`
	Frame    int    `json:"frame"`
}

// Parse splits fid on "-" and requires exactly four parts: a series token
// of letters, digits and underscores, then three unsigned decimal numbers.
func Parse(fid string) (ID, error) {
	parts := strings.Split(fid, "-")
	if len(parts) != 4 {
		return ID{}, fmt.Errorf("%w: %q has %d parts", ErrMalformedIdentifier, fid, len(parts))
	}
	if !validSeries(parts[0]) {
		return ID{}, fmt.Errorf("%w: %q has invalid series %q", ErrMalformedIdentifier, fid, parts[0])
	}

	var nums [3]int
	for i, p := range parts[1:] {
		if !allDigits(p) {
			return ID{}, fmt.Errorf("%w: %q: %q is not a decimal number", ErrMalformedIdentifier, fid, p)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return ID{}, fmt.Errorf("%w: %q: %v", ErrMalformedIdentifier, fid, err)
		}
		nums[i] = n
	}

	return ID{
		SeriesID: parts[0],
		Season:   nums[0],
		Episode:  nums[1],
		Frame:    nums[2],
	}, nil
}

// validSeries keeps the series usable as a single path segment.
func validSeries(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return false
		}
	}
	return true
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// String renders the identifier in its wire form.
func (id ID) String() string {
	return id.SeriesID + "-" + strconv.Itoa(id.Season) + "-" + strconv.Itoa(id.Episode) + "-" + strconv.Itoa(id.Frame)
}

// WithFrame returns a copy of id pointing at another frame of the same episode.
func (id ID) WithFrame(n int) ID {
	id.Frame = n
	return id
}

// Dir is the directory holding every frame of the episode, relative to the
// media root: /{series}/img/{season}/{episode}
func (id ID) Dir() string {
	return "/" + id.SeriesID + "/img/" + strconv.Itoa(id.Season) + "/" + strconv.Itoa(id.Episode)
}

// ImagePath is /{series}/img/{season}/{episode}/{fid}.jpg
func (id ID) ImagePath() string {
	return id.Dir() + "/" + id.String() + ".jpg"
}

// ParseImagePath recovers the identifier from an image path and checks that
// the directory components agree with it.
func ParseImagePath(p string) (ID, error) {
	p = path.Clean("/" + strings.TrimPrefix(p, "/"))
	name := path.Base(p)
	if !strings.HasSuffix(name, ".jpg") {
		return ID{}, fmt.Errorf("%w: %q is not a .jpg path", ErrMalformedIdentifier, p)
	}
	id, err := Parse(strings.TrimSuffix(name, ".jpg"))
	if err != nil {
		return ID{}, err
	}
	if path.Dir(p) != id.Dir() {
		return ID{}, fmt.Errorf("%w: %q does not live under %s", ErrMalformedIdentifier, p, id.Dir())
	}
	return id, nil
}

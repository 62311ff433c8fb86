package ffmpeg

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

var ErrNotFound = errors.New("ffmpeg: binary not found")

// Locate finds a tool binary (ffmpeg or ffprobe). An explicit path wins,
// then PATH, then {baseDir}/tools/ffmpeg.
func Locate(name, explicit, baseDir string) (string, error) {
	if explicit != "" {
		if fileExists(explicit) {
			return explicit, nil
		}
		return "", ErrNotFound
	}
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	if baseDir != "" {
		local := filepath.Join(baseDir, "tools", "ffmpeg", exe(name))
		if fileExists(local) {
			return local, nil
		}
	}
	return "", ErrNotFound
}

func exe(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	framesDirName   = "dl_frames"
	splittedDirName = "dl_frames_splitted"
)

// Folder is one camera/day directory under a frames root.
type Folder struct {
	Day    string
	Camera string
	Dir    string
}

// Dest returns where the groups of f go under dstRoot.
func (f Folder) Dest(dstRoot string) string {
	return filepath.Join(dstRoot, f.Day, f.Camera)
}

// Folders returns every <root>/<day>/<camera> directory, sorted by day then
// camera. Hidden entries and plain files are skipped.
func Folders(root string) ([]Folder, error) {
	days, err := subdirs(root)
	if err != nil {
		return nil, err
	}

	var out []Folder
	for _, day := range days {
		cams, err := subdirs(filepath.Join(root, day))
		if err != nil {
			return nil, err
		}
		for _, cam := range cams {
			out = append(out, Folder{Day: day, Camera: cam, Dir: filepath.Join(root, day, cam)})
		}
	}
	return out, nil
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// DefaultDestRoot derives the output root from a frames root by renaming
// its dl_frames element to dl_frames_splitted, or by appending a
// _splitted suffix when there is none.
func DefaultDestRoot(root string) string {
	clean := filepath.Clean(root)
	parts := strings.Split(clean, string(filepath.Separator))
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == framesDirName {
			parts[i] = splittedDirName
			return strings.Join(parts, string(filepath.Separator))
		}
	}
	return clean + "_splitted"
}

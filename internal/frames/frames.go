// Package frames enumerates camera frames on disk in capture order.
package frames

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// List returns the image files in dir sorted by the number embedded in each
// filename, so frame_2.jpg precedes frame_10.jpg.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read images directory %q: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		return numericKey(files[i]) < numericKey(files[j])
	})
	return files, nil
}

// numericKey extracts the integer formed by the digits in the base name.
// Names without digits sort first as zero.
func numericKey(path string) int {
	var digits strings.Builder
	for _, r := range filepath.Base(path) {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}

// Select applies the start offset, skip factor and frame cap to an ordered
// file list. A zero maxFrames processes every eligible frame.
func Select(files []string, start, skip, maxFrames int) []string {
	if start < 0 {
		start = 0
	}
	if skip < 1 {
		skip = 1
	}
	if start >= len(files) {
		return nil
	}

	available := (len(files) - start) / skip
	count := available
	if maxFrames > 0 && maxFrames < available {
		count = maxFrames
	}

	selected := make([]string, 0, count)
	for i := 0; i < count; i++ {
		selected = append(selected, files[start+i*skip])
	}
	return selected
}

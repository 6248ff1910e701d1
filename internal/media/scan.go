package media

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// VideoFile is a discovered source video with season/episode parsed from its
// filename.
type VideoFile struct {
	Season  int
	Episode int
	Path    string
}

// buildFilenameRegexp matches filenames carrying a season and episode number
// in SxxExx, "Season x Episode y", or bare "x.y" style, ending in one of the
// allowed extensions.
func buildFilenameRegexp(extensions []string) (*regexp.Regexp, error) {
	quoted := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		quoted = append(quoted, regexp.QuoteMeta(strings.TrimPrefix(ext, ".")))
	}
	pattern := `(?i)^.*?(?:s(?:eason)?\s*)?(?P<season>\d+)\s*(?:[.x_\- ]|e(?:pisode)?\s*)(?P<episode>\d+).*\.(?:` + strings.Join(quoted, "|") + `)$`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile filename pattern: %w", err)
	}
	return re, nil
}

// ScanVideos walks the video directory and returns every file that looks
// like an episode. Files without a recognizable season/episode are skipped
// silently; directory path components never participate in matching.
func ScanVideos(dir string, extensions []string, recursive bool) ([]VideoFile, error) {
	re, err := buildFilenameRegexp(extensions)
	if err != nil {
		return nil, err
	}

	var files []VideoFile
	walkErr := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		match := re.FindStringSubmatch(filepath.Base(path))
		if match == nil {
			return nil
		}
		season, err := strconv.Atoi(match[re.SubexpIndex("season")])
		if err != nil {
			return nil
		}
		episode, err := strconv.Atoi(match[re.SubexpIndex("episode")])
		if err != nil {
			return nil
		}
		files = append(files, VideoFile{Season: season, Episode: episode, Path: path})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scan video dir %q: %w", dir, walkErr)
	}
	return files, nil
}

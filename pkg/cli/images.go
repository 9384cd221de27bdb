package cli

import (
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/usecase"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

// collectImages expands directories into the image files below them. Files given
// explicitly are kept whatever their extension.
func collectImages(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to stat path", goerr.V("path", p))
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if imageExtensions[strings.ToLower(filepath.Ext(path))] {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to walk directory", goerr.V("path", p))
		}
		sort.Strings(found)
		files = append(files, found...)
	}

	if len(files) == 0 {
		return nil, goerr.New("no image found", goerr.V("paths", paths))
	}
	return files, nil
}

// loadBatch reads every file into a batch item based on template. When template has
// no category the category and state come from the folder path of each file.
func loadBatch(files []string, template usecase.ValidationInput) ([]usecase.BatchItem, error) {
	items := make([]usecase.BatchItem, 0, len(files))
	for _, file := range files {
		// #nosec G304 - path is expected to be provided by CLI argument
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read image", goerr.V("path", file))
		}

		input := template
		input.Image = data
		input.ContentType = http.DetectContentType(data)
		if input.Category == "" {
			input.FolderPath = filepath.ToSlash(file)
		}
		items = append(items, usecase.BatchItem{Name: file, Input: input})
	}
	return items, nil
}

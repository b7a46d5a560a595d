// Package picker implements the "pick an image and upload it" flow with UI feedback.
//
// The file chooser and the loading/toast UI belong to the host; they are reached
// through the Picker and Feedback interfaces. DirPicker and WriterFeedback are
// terminal stand-ins used by the CLI.
package picker

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tendant/oss-upload/pkg/ossupload"
)

// ErrCanceled is returned when the user closes the picker without choosing a file
var ErrCanceled = errors.New("picker: canceled")

// SizeType selects between the original image and a compressed copy
type SizeType string

const (
	SizeOriginal   SizeType = "original"
	SizeCompressed SizeType = "compressed"
)

// SourceType selects where images come from
type SourceType string

const (
	SourceAlbum  SourceType = "album"
	SourceCamera SourceType = "camera"
)

// ChooseOptions mirrors the knobs of a host image chooser
type ChooseOptions struct {
	Count      int
	SizeType   SizeType
	SourceType SourceType
}

// DefaultChooseOptions picks one compressed image from the album.
func DefaultChooseOptions() ChooseOptions {
	return ChooseOptions{
		Count:      1,
		SizeType:   SizeCompressed,
		SourceType: SourceAlbum,
	}
}

// Picker lets the user choose files. An empty selection is reported as ErrCanceled.
type Picker interface {
	Choose(ctx context.Context, opts ChooseOptions) ([]ossupload.File, error)
}

// StaticPicker returns a fixed selection.
type StaticPicker struct {
	Files []ossupload.File
}

func (p *StaticPicker) Choose(ctx context.Context, opts ChooseOptions) ([]ossupload.File, error) {
	if len(p.Files) == 0 {
		return nil, ErrCanceled
	}
	return limit(p.Files, opts.Count), nil
}

// DirPicker treats a directory as the album and picks its most recently modified images.
type DirPicker struct {
	Dir string
}

func NewDirPicker(dir string) *DirPicker {
	return &DirPicker{Dir: dir}
}

func (p *DirPicker) Choose(ctx context.Context, opts ChooseOptions) ([]ossupload.File, error) {
	if opts.SourceType == SourceCamera {
		return nil, fmt.Errorf("source %q is not available for directory picker", opts.SourceType)
	}

	entries, err := os.ReadDir(p.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read album directory: %w", err)
	}

	type candidate struct {
		file    ossupload.File
		modTime int64
	}
	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() || !isImage(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(p.Dir, entry.Name())
		candidates = append(candidates, candidate{
			file: ossupload.File{
				Path: path,
				Name: entry.Name(),
				Size: info.Size(),
				Type: mime.TypeByExtension(filepath.Ext(path)),
			},
			modTime: info.ModTime().UnixNano(),
		})
	}
	if len(candidates) == 0 {
		return nil, ErrCanceled
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].modTime > candidates[j].modTime
	})
	files := make([]ossupload.File, len(candidates))
	for i, c := range candidates {
		files[i] = c.file
	}
	return limit(files, opts.Count), nil
}

func isImage(name string) bool {
	return strings.HasPrefix(mime.TypeByExtension(strings.ToLower(filepath.Ext(name))), "image/")
}

func limit(files []ossupload.File, count int) []ossupload.File {
	if count > 0 && len(files) > count {
		return files[:count]
	}
	return files
}

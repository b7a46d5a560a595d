package ossupload

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/tendant/oss-upload/pkg/ossupload/objectkey"
)

// File is a local file to upload. Only Path is required; the rest feeds the object key.
type File struct {
	Path string
	Name string
	Size int64
	Type string
}

// FileFromPath builds a File from a local path, filling name, size and MIME type.
func FileFromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}
	return File{
		Path: path,
		Name: filepath.Base(path),
		Size: info.Size(),
		Type: mime.TypeByExtension(filepath.Ext(path)),
	}, nil
}

func (f File) keyInfo() objectkey.FileInfo {
	return objectkey.FileInfo{
		Name: f.Name,
		Path: f.Path,
		Size: f.Size,
		Type: f.Type,
	}
}

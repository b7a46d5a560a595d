package picker

import (
	"context"
	"errors"

	"github.com/tendant/oss-upload/pkg/ossupload"
)

// Feedback titles shown during ChooseAndUpload
const (
	TitleUploading       = "Uploading..."
	TitleUploadSucceeded = "Upload succeeded"
	TitleImageFailed     = "Upload image failed"
	TitleUploadFailed    = "Upload failed"
)

// ErrUploadFailed is returned when the upload finished without producing a URL
var ErrUploadFailed = errors.New("picker: upload image failed")

// Uploader is the part of ossupload.Uploader the flow needs
type Uploader interface {
	Upload(ctx context.Context, file ossupload.File) (*ossupload.Result, error)
}

// Cleaner is implemented by pickers that create temporary files, like Compressor.
type Cleaner interface {
	Cleanup() error
}

// ChooseAndUpload lets the user pick one image, uploads it while a loading indicator
// is shown and returns the public URL. Every outcome ends with the indicator hidden and
// exactly one toast, except cancellation, which shows nothing. Temporary files of a
// Cleaner picker are removed before returning.
func ChooseAndUpload(ctx context.Context, p Picker, u Uploader, fb Feedback, opts ChooseOptions) (string, error) {
	if fb == nil {
		fb = NopFeedback{}
	}
	if opts.Count <= 0 {
		opts.Count = 1
	}

	files, err := p.Choose(ctx, opts)
	if c, ok := p.(Cleaner); ok {
		defer c.Cleanup()
	}
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", ErrCanceled
	}

	fb.ShowLoading(TitleUploading)
	result, err := u.Upload(ctx, files[0])
	fb.HideLoading()

	switch {
	case err != nil && !errors.Is(err, ossupload.ErrNoFile):
		title := ossupload.ErrorMessage(err)
		if title == "" {
			title = TitleUploadFailed
		}
		fb.ShowToast(Toast{Title: title, Icon: IconError})
		return "", err
	case result == nil || result.URL == "":
		fb.ShowToast(Toast{Title: TitleImageFailed, Icon: IconNone})
		return "", ErrUploadFailed
	}

	fb.ShowToast(Toast{Title: TitleUploadSucceeded, Icon: IconSuccess})
	return result.URL, nil
}

package picker

import (
	"fmt"
	"io"
	"log/slog"
)

// Icon of a toast
type Icon string

const (
	IconSuccess Icon = "success"
	IconError   Icon = "error"
	IconNone    Icon = "none"
)

// Toast is a short message shown to the user
type Toast struct {
	Title string
	Icon  Icon
}

// Feedback is the host's loading indicator and toast surface.
type Feedback interface {
	ShowLoading(title string)
	HideLoading()
	ShowToast(toast Toast)
}

// NopFeedback discards all feedback.
type NopFeedback struct{}

func (NopFeedback) ShowLoading(string) {}
func (NopFeedback) HideLoading()       {}
func (NopFeedback) ShowToast(Toast)    {}

// LogFeedback reports feedback as structured log records.
type LogFeedback struct {
	Logger *slog.Logger
}

func (f LogFeedback) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

func (f LogFeedback) ShowLoading(title string) {
	f.logger().Info("loading", "title", title)
}

func (f LogFeedback) HideLoading() {
	f.logger().Debug("loading hidden")
}

func (f LogFeedback) ShowToast(toast Toast) {
	if toast.Icon == IconError {
		f.logger().Error("toast", "title", toast.Title)
		return
	}
	f.logger().Info("toast", "title", toast.Title, "icon", string(toast.Icon))
}

// WriterFeedback prints feedback as plain lines, e.g. to a terminal.
type WriterFeedback struct {
	W io.Writer
}

func (f WriterFeedback) ShowLoading(title string) {
	fmt.Fprintf(f.W, "… %s\n", title)
}

func (f WriterFeedback) HideLoading() {}

func (f WriterFeedback) ShowToast(toast Toast) {
	mark := "•"
	switch toast.Icon {
	case IconSuccess:
		mark = "✔"
	case IconError:
		mark = "✖"
	}
	fmt.Fprintf(f.W, "%s %s\n", mark, toast.Title)
}

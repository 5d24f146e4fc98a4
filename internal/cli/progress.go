package cli

import (
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"
)

// ProgressReader reports bytes read from an upload.
type ProgressReader struct {
	reader progressbar.Reader
	bar    *progressbar.ProgressBar
}

// NewProgressReader wraps r with a progress bar drawn on w. size is the
// expected byte count; pass -1 when unknown. When visible is false the bar
// is never drawn.
func NewProgressReader(r io.Reader, w io.Writer, size int64, description string, visible bool) *ProgressReader {
	bar := progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetVisibility(visible),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if visible {
				_, _ = io.WriteString(w, "\n")
			}
		}),
	)

	return &ProgressReader{
		reader: progressbar.NewReader(r, bar),
		bar:    bar,
	}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	return p.reader.Read(b)
}

// Finish completes the bar.
func (p *ProgressReader) Finish() {
	if err := p.bar.Finish(); err != nil {
		slog.Warn("Failed to finish progress bar", "error", err)
	}
}

// Bytes returns the number of bytes read so far.
func (p *ProgressReader) Bytes() int64 {
	return int64(p.bar.State().CurrentNum)
}

// Package media classifies stored MIME types into preview kinds.
package media

import (
	"mime"
	"net/url"
	"strings"
)

// Kind is the preview variant of a file.
type Kind string

const (
	Image Kind = "image"
	Video Kind = "video"
	Audio Kind = "audio"
	PDF   Kind = "pdf"
	Text  Kind = "text"
	Other Kind = "other"
)

// Classify maps a MIME type to its Kind. Parameters such as charset are ignored.
func Classify(mimeType string) Kind {
	base := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	switch {
	case strings.HasPrefix(base, "image/"):
		return Image
	case strings.HasPrefix(base, "video/"):
		return Video
	case strings.HasPrefix(base, "audio/"):
		return Audio
	case base == "application/pdf":
		return PDF
	case strings.HasPrefix(base, "text/"):
		return Text
	}
	return Other
}

// Inline reports whether a browser can display the kind directly.
func (k Kind) Inline() bool {
	return k != Other
}

// Disposition returns the Content-Disposition header for serving filename.
// Owner downloads force an attachment; share fetches follow the kind.
func Disposition(k Kind, filename string, forceDownload bool) string {
	typ := "attachment"
	if !forceDownload && k.Inline() {
		typ = "inline"
	}
	if v := mime.FormatMediaType(typ, map[string]string{"filename": filename}); v != "" {
		return v
	}
	return typ + "; filename*=UTF-8''" + url.PathEscape(filename)
}

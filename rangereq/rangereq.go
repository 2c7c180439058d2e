// Package rangereq decides how much of a stored blob to send for an HTTP
// request. It parses a single "bytes=start-end" or "bytes=start-" range for
// audio and video content and falls back to the full body for anything else.
package rangereq

import (
	"net/http"
	"strconv"
	"strings"
)

// Plan describes the response to send.
type Plan struct {
	Status  int
	Start   int64
	End     int64 // inclusive
	Total   int64
	Partial bool
}

// Length is the number of body bytes the plan sends.
func (p Plan) Length() int64 {
	if p.Total == 0 {
		return 0
	}
	return p.End - p.Start + 1
}

// ContentRange returns the Content-Range header value, or "" for a full response.
func (p Plan) ContentRange() string {
	if !p.Partial {
		return ""
	}
	return "bytes " + strconv.FormatInt(p.Start, 10) + "-" + strconv.FormatInt(p.End, 10) + "/" + strconv.FormatInt(p.Total, 10)
}

// Headers returns the range-related response headers.
func (p Plan) Headers() map[string]string {
	h := map[string]string{
		"Accept-Ranges":  "bytes",
		"Content-Length": strconv.FormatInt(p.Length(), 10),
	}
	if p.Partial {
		h["Content-Range"] = p.ContentRange()
	}
	return h
}

// Full is the plan for sending the whole blob.
func Full(total int64) Plan {
	p := Plan{Status: http.StatusOK, Total: total}
	if total > 0 {
		p.End = total - 1
	}
	return p
}

// Rangeable reports whether partial responses are offered for the MIME type.
func Rangeable(mime string) bool {
	m := strings.ToLower(strings.TrimSpace(mime))
	return strings.HasPrefix(m, "video/") || strings.HasPrefix(m, "audio/")
}

// Resolve returns a 206 plan for a valid single range on audio or video
// content of the given total length. Everything else gets a 200 plan.
func Resolve(total int64, mime, header string) Plan {
	if header == "" || !Rangeable(mime) {
		return Full(total)
	}
	start, end, ok := parse(header, total)
	if !ok || start < 0 || start > end || end >= total {
		return Full(total)
	}
	return Plan{
		Status:  http.StatusPartialContent,
		Start:   start,
		End:     end,
		Total:   total,
		Partial: true,
	}
}

// parse accepts "bytes=S-E" and "bytes=S-". The suffix form "bytes=-N" and
// multiple ranges are not supported.
func parse(header string, total int64) (start, end int64, ok bool) {
	byteRange, found := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !found || strings.Contains(byteRange, ",") {
		return 0, 0, false
	}
	first, last, found := strings.Cut(strings.TrimSpace(byteRange), "-")
	if !found {
		return 0, 0, false
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	start, ok = parseDigits(first)
	if !ok {
		return 0, 0, false
	}
	if last == "" {
		return start, total - 1, true
	}
	end, ok = parseDigits(last)
	return start, end, ok
}

func parseDigits(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

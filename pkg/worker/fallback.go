package worker

import (
	"io"
	"net/http"
	"strings"
)

// FallbackBody is the page served when neither cache nor network answers.
const FallbackBody = "<h1>Service Unavailable</h1>"

// FallbackResponse synthesizes the 503 page for req.
func FallbackResponse(req *http.Request) *http.Response {
	return &http.Response{
		Status:     "503 Service Unavailable",
		StatusCode: http.StatusServiceUnavailable,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header: http.Header{
			"Content-Type": []string{"text/html"},
		},
		Body:          io.NopCloser(strings.NewReader(FallbackBody)),
		ContentLength: int64(len(FallbackBody)),
		Request:       req,
	}
}

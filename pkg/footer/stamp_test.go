package footer

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestStamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "replaces placeholder",
			input: `<footer>&copy; <span id="copyright-year">2019</span> Hammed</footer>`,
			want:  `<footer>&copy; <span id="copyright-year">2026</span> Hammed</footer>`,
		},
		{
			name:  "empty element",
			input: `<p><span id="copyright-year"></span></p>`,
			want:  `<p><span id="copyright-year">2026</span></p>`,
		},
		{
			name:  "nested markup dropped",
			input: `<span id="copyright-year"><b>20</b>19<br></span>!`,
			want:  `<span id="copyright-year">2026</span>!`,
		},
		{
			name:  "other ids untouched",
			input: `<span id="year">2019</span><span class="copyright-year">2019</span>`,
			want:  `<span id="year">2019</span><span class="copyright-year">2019</span>`,
		},
		{
			name:  "single quoted attributes and extra attrs",
			input: `<span class='x' id='copyright-year' data-x=1>old</span>`,
			want:  `<span class='x' id='copyright-year' data-x=1>2026</span>`,
		},
		{
			name:  "document without footer",
			input: `<!DOCTYPE html><html><head><title>t</title></head><body><!-- c --></body></html>`,
			want:  `<!DOCTYPE html><html><head><title>t</title></head><body><!-- c --></body></html>`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Stamp(&buf, strings.NewReader(tt.input), 2026); err != nil {
				t.Fatalf("Stamp() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("Stamp() = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func fixedClock() time.Time {
	return time.Date(2026, time.October, 17, 0, 0, 0, 0, time.UTC)
}

func TestTransformer_ModifyResponse(t *testing.T) {
	page := `<footer><span id="copyright-year">2000</span></footer>`

	tests := []struct {
		name     string
		header   http.Header
		body     string
		wantBody string
	}{
		{
			name:     "html is stamped",
			header:   http.Header{"Content-Type": []string{"text/html; charset=utf-8"}, "Content-Length": []string{"12"}},
			body:     page,
			wantBody: `<footer><span id="copyright-year">2026</span></footer>`,
		},
		{
			name:     "non html untouched",
			header:   http.Header{"Content-Type": []string{"text/css"}},
			body:     page,
			wantBody: page,
		},
		{
			name:     "compressed html untouched",
			header:   http.Header{"Content-Type": []string{"text/html"}, "Content-Encoding": []string{"gzip"}},
			body:     page,
			wantBody: page,
		},
		{
			name:     "html without footer untouched",
			header:   http.Header{"Content-Type": []string{"text/html"}},
			body:     "<h1>Service Unavailable</h1>",
			wantBody: "<h1>Service Unavailable</h1>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{
				StatusCode: http.StatusOK,
				Header:     tt.header,
				Body:       io.NopCloser(strings.NewReader(tt.body)),
			}

			tr := &Transformer{Now: fixedClock}
			if err := tr.ModifyResponse(resp); err != nil {
				t.Fatalf("ModifyResponse() error = %v", err)
			}

			body, _ := io.ReadAll(resp.Body)
			if string(body) != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
			if tt.body != tt.wantBody {
				if resp.Header.Get("Content-Length") != "54" || resp.ContentLength != 54 {
					t.Errorf("Content-Length = %q / %d, want 54", resp.Header.Get("Content-Length"), resp.ContentLength)
				}
			}
		})
	}
}

// Package footer stamps the current year into the site's copyright footer.
package footer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/html"
)

// TargetID is the id of the element whose text becomes the year.
const TargetID = "copyright-year"

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// Stamp copies the HTML document from r to w, replacing the content of the
// element with id TargetID by year. Every other token is written unchanged.
func Stamp(w io.Writer, r io.Reader, year int) error {
	z := html.NewTokenizer(r)
	stamp := []byte(strconv.Itoa(year))

	// depth > 0 while inside the target element
	depth := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return nil
			}
			return fmt.Errorf("tokenize html: %w", z.Err())
		}

		// Raw is invalidated by TagName and TagAttr
		raw := append([]byte(nil), z.Raw()...)

		if depth == 0 {
			if _, err := w.Write(raw); err != nil {
				return err
			}
			if tt == html.StartTagToken && isTarget(z) {
				if _, err := w.Write(stamp); err != nil {
					return err
				}
				depth = 1
			}
			continue
		}

		switch tt {
		case html.StartTagToken:
			name, _ := z.TagName()
			if !voidElements[string(name)] {
				depth++
			}
		case html.EndTagToken:
			depth--
			if depth == 0 {
				if _, err := w.Write(raw); err != nil {
					return err
				}
			}
		}
	}
}

func isTarget(z *html.Tokenizer) bool {
	name, hasAttr := z.TagName()
	if voidElements[string(name)] {
		return false
	}
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		if string(key) == "id" && string(val) == TargetID {
			return true
		}
	}
	return false
}

// Transformer applies Stamp to HTML responses.
type Transformer struct {
	// Now returns the current time; defaults to time.Now
	Now func() time.Time
}

// NewTransformer creates a transformer using the wall clock.
func NewTransformer() *Transformer {
	return &Transformer{Now: time.Now}
}

// ModifyResponse rewrites uncompressed text/html bodies that contain the
// footer element. It fits httputil.ReverseProxy.ModifyResponse.
func (t *Transformer) ModifyResponse(resp *http.Response) error {
	if resp.Body == nil || !isHTML(resp.Header.Get("Content-Type")) {
		return nil
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read html body: %w", err)
	}

	if !bytes.Contains(body, []byte(TargetID)) {
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return nil
	}

	now := time.Now
	if t.Now != nil {
		now = t.Now
	}

	var buf bytes.Buffer
	if err := Stamp(&buf, bytes.NewReader(body), now().Year()); err != nil {
		resp.Body = io.NopCloser(bytes.NewReader(body))
		return err
	}

	resp.Body = io.NopCloser(&buf)
	resp.ContentLength = int64(buf.Len())
	resp.Header.Set("Content-Length", strconv.Itoa(buf.Len()))
	return nil
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/html"
}

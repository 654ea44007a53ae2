package worker

import (
	"io"
	"net/http"
)

// ResponseModifier rewrites a response before it is written to the client.
// It has the shape of httputil.ReverseProxy.ModifyResponse.
type ResponseModifier func(*http.Response) error

// Handler serves requests through the active worker. Requests the worker
// does not intercept, and all requests while no worker is active, go to next.
// modify may be nil.
func Handler(reg *Registration, next http.Handler, modify ResponseModifier) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		w := reg.Active()
		if w == nil {
			next.ServeHTTP(rw, r)
			return
		}

		req := w.OriginRequest(r)
		if !w.Intercepts(req) {
			fetchIgnoredTotal.Inc()
			w.logger.Debug().
				Str("method", r.Method).
				Str("url", req.URL.String()).
				Msg("Fetch event ignored")
			next.ServeHTTP(rw, r)
			return
		}

		resp := w.Fetch(r.Context(), req)
		defer resp.Body.Close()

		if modify != nil {
			if err := modify(resp); err != nil {
				w.logger.Warn().Err(err).Str("url", req.URL.String()).Msg("Response modifier failed")
			}
		}

		if err := writeResponse(rw, resp); err != nil {
			w.logger.Debug().Err(err).Str("url", req.URL.String()).Msg("Failed to write response")
		}
	})
}

// OriginRequest maps an incoming proxy request onto the worker origin so
// cache keys match the URLs fundamentals were installed under.
func (w *Worker) OriginRequest(r *http.Request) *http.Request {
	out := r.Clone(r.Context())
	u := *w.config.Origin
	u.Path = r.URL.Path
	u.RawPath = r.URL.RawPath
	u.RawQuery = r.URL.RawQuery
	out.URL = &u
	out.Host = u.Host
	out.RequestURI = ""
	return out
}

func writeResponse(rw http.ResponseWriter, resp *http.Response) error {
	header := rw.Header()
	for key, values := range resp.Header {
		for _, value := range values {
			header.Add(key, value)
		}
	}

	rw.WriteHeader(resp.StatusCode)

	_, err := io.Copy(rw, resp.Body)
	return err
}

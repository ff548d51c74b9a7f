package middleware

import (
	"net/http"

	"github.com/cloo-solutions/docsage/internal/api"
	"github.com/cloo-solutions/docsage/internal/logger"
)

// BodyLimit caps request bodies at limit bytes. It is mounted per route
// group: questions and searches are small, ingest batches carry whole pages.
// Requests that declare an oversized body are refused before any read;
// streamed bodies are cut off by http.MaxBytesReader and surface as 413 from
// api.DecodeAndValidate.
func BodyLimit(limit int64, log *logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 || r.Body == nil || !carriesBody(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > limit {
				log.Warn("request body rejected",
					"request_id", GetRequestID(r.Context()),
					"path", r.URL.Path,
					"content_length", r.ContentLength,
					"limit", limit,
				)
				api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

func carriesBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

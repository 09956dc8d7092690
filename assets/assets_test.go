package assets

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

func testFS() fstest.MapFS {
	mod := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return fstest.MapFS{
		"index.htm":        {Data: []byte("<html>home</html>"), ModTime: mod},
		"css/site.css":     {Data: []byte("body{}"), ModTime: mod},
		"docs/index.htm":   {Data: []byte("<html>docs</html>"), ModTime: mod},
		"img/logo":         {Data: []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), ModTime: mod},
		"data/config.json": {Data: []byte(`{"a":1}`), ModTime: mod},
	}
}

func serve(h http.Handler, method, target string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeFiles(t *testing.T) {
	h := NewHandler(testFS(), WithCacheControl("public, max-age=60"))

	tests := []struct {
		name        string
		target      string
		status      int
		contentType string
		body        string
	}{
		{"index at root", "/assets/", http.StatusOK, "text/html", "<html>home</html>"},
		{"root without slash", "/assets", http.StatusOK, "text/html", "<html>home</html>"},
		{"css", "/assets/css/site.css", http.StatusOK, "text/css; charset=utf-8", "body{}"},
		{"sniffed", "/assets/img/logo", http.StatusOK, "image/png", ""},
		{"nested index", "/assets/docs/", http.StatusOK, "text/html", "<html>docs</html>"},
		{"missing", "/assets/nope.js", http.StatusNotFound, "", ""},
		{"outside", "/other/index.htm", http.StatusNotFound, "", ""},
		{"traversal", "/assets/../secret", http.StatusNotFound, "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(h, http.MethodGet, tc.target)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if tc.status != http.StatusOK {
				return
			}
			if !strings.HasPrefix(rec.Header().Get("Content-Type"), tc.contentType) {
				t.Errorf("expected content type %q, got %q", tc.contentType, rec.Header().Get("Content-Type"))
			}
			if tc.body != "" && rec.Body.String() != tc.body {
				t.Errorf("expected body %q, got %q", tc.body, rec.Body.String())
			}
			if rec.Header().Get("Cache-Control") != "public, max-age=60" {
				t.Errorf("expected Cache-Control header, got %q", rec.Header().Get("Cache-Control"))
			}
			if rec.Header().Get("ETag") == "" {
				t.Error("expected ETag header")
			}
		})
	}
}

func TestDirectoryRedirect(t *testing.T) {
	rec := serve(NewHandler(testFS()), http.MethodGet, "/assets/docs")
	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("expected 301, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/assets/docs/" {
		t.Errorf("expected redirect to /assets/docs/, got %q", loc)
	}
}

func TestConditionalRequests(t *testing.T) {
	h := NewHandler(testFS())
	first := serve(h, http.MethodGet, "/assets/css/site.css")
	etag := first.Header().Get("ETag")

	if rec := serve(h, http.MethodGet, "/assets/css/site.css", "If-None-Match", etag); rec.Code != http.StatusNotModified {
		t.Errorf("expected 304 for matching ETag, got %d", rec.Code)
	}
	if rec := serve(h, http.MethodGet, "/assets/css/site.css", "If-None-Match", `"other"`); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for other ETag, got %d", rec.Code)
	}
	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat)
	if rec := serve(h, http.MethodGet, "/assets/css/site.css", "If-Modified-Since", since); rec.Code != http.StatusNotModified {
		t.Errorf("expected 304 for If-Modified-Since, got %d", rec.Code)
	}
}

func TestRangeAndMethods(t *testing.T) {
	h := NewHandler(testFS())
	rec := serve(h, http.MethodGet, "/assets/css/site.css", "Range", "bytes=0-3")
	if rec.Code != http.StatusPartialContent || rec.Body.String() != "body" {
		t.Errorf("expected 206 body, got %d %q", rec.Code, rec.Body.String())
	}
	if rec := serve(h, http.MethodHead, "/assets/css/site.css"); rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("expected 200 with empty body for HEAD, got %d %d bytes", rec.Code, rec.Body.Len())
	}
	if rec := serve(h, http.MethodPost, "/assets/css/site.css"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestCustomPathAndNoIndex(t *testing.T) {
	h := NewHandler(testFS(), WithURIPath("static/"), WithIndexFile(""))
	if rec := serve(h, http.MethodGet, "/static/data/config.json"); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec := serve(h, http.MethodGet, "/static/"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 without index file, got %d", rec.Code)
	}
}

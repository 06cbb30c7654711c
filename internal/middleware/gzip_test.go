package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// echoNotesHandler отвечает телом запроса, как это делает обработчик заметок.
func echoNotesHandler(w http.ResponseWriter, r *http.Request) {
	note, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"note":"` + string(note) + `"}`))
}

func gzipBody(t *testing.T, payload string) io.Reader {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(payload)); err != nil {
		t.Fatalf("write gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return &buf
}

func TestGzipMiddleware(t *testing.T) {
	tests := []struct {
		name          string
		payload       string
		compressBody  bool
		acceptGzip    bool
		wantEncoding  string
		wantNoteInRes string
	}{
		{
			name:          "response compressed for gzip client",
			payload:       "replaced brake pads",
			acceptGzip:    true,
			wantEncoding:  "gzip",
			wantNoteInRes: "replaced brake pads",
		},
		{
			name:          "plain response without accept-encoding",
			payload:       "oil change done",
			acceptGzip:    false,
			wantEncoding:  "",
			wantNoteInRes: "oil change done",
		},
		{
			name:          "compressed request body is decoded",
			payload:       "waiting for timing belt",
			compressBody:  true,
			acceptGzip:    true,
			wantEncoding:  "gzip",
			wantNoteInRes: "waiting for timing belt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader = strings.NewReader(tt.payload)
			if tt.compressBody {
				body = gzipBody(t, tt.payload)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/orders/1/notes", body)
			if tt.compressBody {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptGzip {
				req.Header.Set("Accept-Encoding", "gzip")
			}

			rec := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(echoNotesHandler)).ServeHTTP(rec, req)

			res := rec.Result()
			defer res.Body.Close()

			if res.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
			}
			if ce := res.Header.Get("Content-Encoding"); ce != tt.wantEncoding {
				t.Fatalf("content-encoding = %q, want %q", ce, tt.wantEncoding)
			}

			reader := io.Reader(res.Body)
			if tt.wantEncoding == "gzip" {
				zr, err := gzip.NewReader(res.Body)
				if err != nil {
					t.Fatalf("new gzip reader: %v", err)
				}
				defer zr.Close()
				reader = zr
			}

			got, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if !strings.Contains(string(got), tt.wantNoteInRes) {
				t.Fatalf("body %q does not contain %q", got, tt.wantNoteInRes)
			}
		})
	}
}

func TestGzipMiddleware_BadCompressedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/orders/1/notes", strings.NewReader("not gzip at all"))
	req.Header.Set("Content-Encoding", "gzip")

	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoNotesHandler)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

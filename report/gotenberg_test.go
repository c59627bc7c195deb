package report

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderHTMLPostsIndexFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forms/chromium/convert/html", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, A4Width, r.FormValue("paperWidth"))
		f, fh, err := r.FormFile("files")
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, "index.html", fh.Filename)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "<p>hi</p>", string(body))
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	pdf, err := NewClient(srv.URL+"/").RenderHTML(context.Background(), "<p>hi</p>")
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.7", string(pdf))
}

func TestRenderHTMLSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chromium crashed", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).RenderHTML(context.Background(), "<p/>")
	require.ErrorContains(t, err, "503")
	require.ErrorContains(t, err, "chromium crashed")
	require.Error(t, NewClient(srv.URL).Ping(context.Background()))
}

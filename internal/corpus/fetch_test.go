package corpus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><head><title>Visas</title></head><body><p>F-1 needs an I-20.</p></body></html>"))
	}))
	defer srv.Close()

	page, err := NewFetcher(srv.Client()).Fetch(context.Background(), srv.URL+"/visas")
	require.NoError(t, err)
	assert.Equal(t, "Visas", page.Title)
	assert.Equal(t, "F-1 needs an I-20.", page.Text)
}

func TestFetchPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("  line one  \n\n line   two"))
	}))
	defer srv.Close()

	page, err := NewFetcher(nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", page.Text)
}

func TestFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/empty":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html><body><script>only()</script></body></html>"))
		case "/huge":
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte(strings.Repeat("a", maxPageBytes+10)))
		}
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client())
	ctx := context.Background()

	_, err := f.Fetch(ctx, "ftp://example.edu/file")
	assert.Error(t, err)
	_, err = f.Fetch(ctx, "not a url")
	assert.Error(t, err)

	_, err = f.Fetch(ctx, srv.URL+"/missing")
	assert.ErrorContains(t, err, "status 404")

	_, err = f.Fetch(ctx, srv.URL+"/empty")
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = f.Fetch(ctx, srv.URL+"/huge")
	assert.ErrorContains(t, err, "5 MB")
}

func TestFetchInto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<title>Programs</title><p>Computer Science</p>"))
	}))
	defer srv.Close()

	l := newTestLibrary(t)
	name, err := FetchInto(context.Background(), NewFetcher(srv.Client()), l, srv.URL+"/programs", false)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "scraped/page_127.0.0.1_"))

	data, err := os.ReadFile(filepath.Join(l.Dir(), filepath.FromSlash(name)))
	require.NoError(t, err)
	assert.Equal(t, "Source: "+srv.URL+"/programs\nPrograms\nComputer Science", string(data))
}

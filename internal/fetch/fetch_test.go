package fetch_test

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/local/pdftools/internal/fetch"
	"github.com/m-mizutani/gt"
)

func TestFetchDataURL(t *testing.T) {
	r := fetch.New()
	svg := `<svg xmlns="http://www.w3.org/2000/svg"/>`

	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "base64", url: "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg)), want: svg},
		{name: "percent encoded", url: "data:,hello%20world", want: "hello world"},
		{name: "upper case scheme", url: "DATA:text/plain,abc", want: "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := r.Fetch(context.Background(), tt.url)
			gt.NoError(t, err)
			gt.Equal(t, string(data), tt.want)
		})
	}

	_, err := r.Fetch(context.Background(), "data:image/png;base64")
	gt.Error(t, err)
}

func TestFetchDataURLSizeLimit(t *testing.T) {
	r := fetch.New(fetch.WithMaxBytes(8))
	ctx := context.Background()

	data, err := r.Fetch(ctx, "data:;base64,"+base64.StdEncoding.EncodeToString([]byte("12345678")))
	gt.NoError(t, err)
	gt.Equal(t, string(data), "12345678")

	_, err = r.Fetch(ctx, "data:;base64,"+base64.StdEncoding.EncodeToString(make([]byte, 64)))
	gt.True(t, errors.Is(err, fetch.ErrTooLarge))

	_, err = r.Fetch(ctx, "data:;base64,"+strings.Repeat("!", 1<<10))
	gt.True(t, errors.Is(err, fetch.ErrTooLarge))

	_, err = r.Fetch(ctx, "data:,"+strings.Repeat("a", 100))
	gt.True(t, errors.Is(err, fetch.ErrTooLarge))
}

func TestFetchHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page-1.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
		case "/big":
			_, _ = w.Write(make([]byte, 64))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	r := fetch.New(
		fetch.WithMaxBytes(32),
		fetch.WithHTTP(fetch.HTTPOptions{Timeout: 5 * time.Second, UserAgent: "pdftools-test"}),
	)
	defer r.Close()

	data, err := r.Fetch(context.Background(), srv.URL+"/page-1.png")
	gt.NoError(t, err)
	gt.Equal(t, string(data), "png-bytes")

	_, err = r.Fetch(context.Background(), srv.URL+"/missing")
	var se *fetch.StatusError
	gt.True(t, errors.As(err, &se))
	gt.Equal(t, se.StatusCode, http.StatusNotFound)

	_, err = r.Fetch(context.Background(), srv.URL+"/big")
	gt.True(t, errors.Is(err, fetch.ErrTooLarge))
}

func TestFetchRoutesRegisteredSources(t *testing.T) {
	var got string
	src := fetch.SourceFunc(func(_ context.Context, rawURL string) ([]byte, error) {
		got = rawURL
		return []byte("object"), nil
	})
	r := fetch.New(fetch.WithSource(src, "s3"))

	data, err := r.Fetch(context.Background(), "s3://bucket/jobs/j1/page-1.png")
	gt.NoError(t, err)
	gt.Equal(t, string(data), "object")
	gt.Equal(t, got, "s3://bucket/jobs/j1/page-1.png")

	_, err = r.Fetch(context.Background(), "ftp://host/file")
	gt.True(t, errors.Is(err, fetch.ErrUnsupportedScheme))
}

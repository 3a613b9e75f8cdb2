package web_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/gt"

	"github.com/local/pdftools/internal/export"
	"github.com/local/pdftools/internal/store"
	"github.com/local/pdftools/internal/web"
)

type countingFetcher struct {
	calls atomic.Int32
	fail  string
}

func (f *countingFetcher) Fetch(_ context.Context, u string) ([]byte, error) {
	f.calls.Add(1)
	if u == f.fail {
		return nil, errors.New("connection reset")
	}
	return []byte("data of " + u), nil
}

func setup(t *testing.T, opts web.Options) (http.Handler, *countingFetcher, string) {
	t.Helper()
	jobs := store.NewMemory(time.Hour)
	f := &countingFetcher{fail: "mem://page-2"}
	job := store.Job{
		ID:       "job-1",
		Tool:     "pdf-to-image",
		Status:   store.StateSuccess,
		FileName: "report.pdf",
		Pages:    3,
		Artifacts: []export.Artifact{
			{URL: "mem://page-1", Name: "page-1.png"},
			{URL: "mem://page-2", Name: "page-2.png"},
			{URL: "mem://page-3", Name: "page-3.png"},
		},
	}
	gt.NoError(t, jobs.Save(context.Background(), job))

	r := chi.NewRouter()
	web.New(jobs, export.New(f), opts).RegisterRoutes(r)
	return r, f, job.ID
}

func post(h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestPreviewRendersTiles(t *testing.T) {
	h, f, id := setup(t, web.Options{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/web/jobs/"+id, nil))

	gt.Equal(t, w.Code, http.StatusOK)
	body := w.Body.String()
	gt.String(t, body).Contains(`placeholder="e.g. 1, 3-5"`)
	gt.String(t, body).Contains("/api/jobs/job-1/artifacts/3")
	gt.String(t, body).Contains("Download All as ZIP")
	gt.Equal(t, f.calls.Load(), int32(0))
}

func TestPreviewUnknownJob(t *testing.T) {
	h, _, _ := setup(t, web.Options{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/web/jobs/nope", nil))
	gt.Equal(t, w.Code, http.StatusNotFound)
}

func TestExportTypedRange(t *testing.T) {
	h, _, id := setup(t, web.Options{})
	w := post(h, "/web/jobs/"+id, url.Values{"action": {"export"}, "range": {" 3, 1 "}, "rendered_range": {""}})

	gt.Equal(t, w.Code, http.StatusOK)
	gt.Equal(t, w.Header().Get("Content-Type"), "application/zip")
	gt.String(t, w.Header().Get("Content-Disposition")).Contains(`filename="pages-3,1.zip"`)
}

func TestExportCheckboxSelection(t *testing.T) {
	h, _, id := setup(t, web.Options{})
	// range text unchanged since render, so the checkboxes win
	w := post(h, "/web/jobs/"+id, url.Values{"action": {"export"}, "range": {"2"}, "rendered_range": {"2"}, "page": {"3", "1"}})

	gt.Equal(t, w.Code, http.StatusOK)
	gt.String(t, w.Header().Get("Content-Disposition")).Contains(`filename="pages-1,3.zip"`)
}

func TestExportEmptySelectionFetchesNothing(t *testing.T) {
	h, f, id := setup(t, web.Options{})
	w := post(h, "/web/jobs/"+id, url.Values{"action": {"export"}, "range": {"abc, 9"}, "rendered_range": {""}})

	gt.Equal(t, w.Code, http.StatusUnprocessableEntity)
	body := w.Body.String()
	gt.String(t, body).Contains(web.InvalidRangeAlert)
	gt.String(t, body).Contains("Ignored: abc, 9")
	gt.Equal(t, f.calls.Load(), int32(0))
}

func TestUpdateRendersUnifiedSelection(t *testing.T) {
	h, f, id := setup(t, web.Options{})
	w := post(h, "/web/jobs/"+id, url.Values{"action": {"update"}, "range": {"3-2"}, "rendered_range": {""}, "page": {"1"}})

	gt.Equal(t, w.Code, http.StatusOK)
	body := w.Body.String()
	gt.String(t, body).Contains(`name="range" value="2-3"`)
	gt.String(t, body).Contains(`value="2" checked`)
	gt.String(t, body).Contains(`value="3" checked`)
	gt.False(t, strings.Contains(body, `value="1" checked`))
	gt.Equal(t, f.calls.Load(), int32(0))
}

func TestExportFetchFailureOffersRetry(t *testing.T) {
	h, _, id := setup(t, web.Options{})
	w := post(h, "/web/jobs/"+id, url.Values{"action": {"export"}, "range": {"1-3"}, "rendered_range": {""}})

	gt.Equal(t, w.Code, http.StatusBadGateway)
	gt.String(t, w.Body.String()).Contains("Could not retrieve page 2 (page-2.png)")
}

func TestDownloadAll(t *testing.T) {
	h, f, id := setup(t, web.Options{})
	f.fail = ""
	w := post(h, "/web/jobs/"+id, url.Values{"action": {"all"}})

	gt.Equal(t, w.Code, http.StatusOK)
	gt.String(t, w.Header().Get("Content-Disposition")).Contains(`filename=pdf-images.zip`)
	gt.Equal(t, f.calls.Load(), int32(3))
}

func TestBasicAuth(t *testing.T) {
	h, _, id := setup(t, web.Options{Username: "admin", Password: "secret"})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/web/jobs/"+id, nil))
	gt.Equal(t, w.Code, http.StatusUnauthorized)

	req := httptest.NewRequest(http.MethodGet, "/web/jobs/"+id, nil)
	req.SetBasicAuth("admin", "secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	gt.Equal(t, w.Code, http.StatusOK)
}

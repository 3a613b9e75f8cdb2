package orchestrator_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/local/pdftools/internal/converter"
	"github.com/local/pdftools/internal/dispatcher"
	"github.com/local/pdftools/internal/export"
	"github.com/local/pdftools/internal/imagerender"
	"github.com/local/pdftools/internal/limiter"
	"github.com/local/pdftools/internal/orchestrator"
	"github.com/local/pdftools/internal/queue"
	"github.com/local/pdftools/internal/storage"
	"github.com/local/pdftools/internal/store"
)

type env struct {
	handler http.Handler
	deps    orchestrator.Dependencies
	queue   *queue.MemoryQueue
	storage *storage.LocalStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := storage.NewLocalStore(t.TempDir())
	gt.NoError(t, err)
	q := queue.NewMemoryQueue(16)
	t.Cleanup(func() { _ = q.Close() })

	deps := orchestrator.Dependencies{
		Converter: converter.New(converter.NewLibreOffice("definitely-not-soffice", time.Second)),
		Limiter:   limiter.New(2),
		Queue:     q,
		Jobs:      store.NewMemory(time.Hour),
		Storage:   st,
		Exporter:  export.New(st),
	}
	o := orchestrator.New(deps)
	return &env{handler: o.Routes(), deps: deps, queue: q, storage: st}
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func uploadRequest(t *testing.T, tool string, files map[string][]byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if tool != "" {
		gt.NoError(t, mw.WriteField("tool", tool))
	}
	for k, v := range fields {
		gt.NoError(t, mw.WriteField(k, v))
	}
	for name, data := range files {
		fw, err := mw.CreateFormFile("files", name)
		gt.NoError(t, err)
		_, err = fw.Write(data)
		gt.NoError(t, err)
	}
	gt.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/pdf/generate", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// seedJob stores a finished job with n artifacts.
func (e *env) seedJob(t *testing.T, id string, n int) {
	t.Helper()
	ctx := context.Background()
	job := store.Job{ID: id, Tool: converter.ToolPDFToImage, Status: store.StateSuccess, Pages: n, Created: time.Now()}
	for i := 1; i <= n; i++ {
		name := fmt.Sprintf("page-%d.png", i)
		u, err := e.storage.Put(ctx, storage.JobKey(id, name), []byte("png "+name), "image/png")
		gt.NoError(t, err)
		job.Artifacts = append(job.Artifacts, export.Artifact{URL: u, Name: name})
	}
	gt.NoError(t, e.deps.Jobs.Save(ctx, job))
}

func exportRequest(id, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/"+id+"/export", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestTools(t *testing.T) {
	e := newEnv(t)
	w := e.do(httptest.NewRequest(http.MethodGet, "/api/tools", nil))
	gt.Equal(t, w.Code, http.StatusOK)

	var body struct {
		Tools []struct {
			ID    string `json:"id"`
			Async bool   `json:"async"`
		} `json:"tools"`
	}
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	gt.Equal(t, len(body.Tools), 7)
}

func TestGenerate(t *testing.T) {
	t.Run("text to pdf", func(t *testing.T) {
		e := newEnv(t)
		w := e.do(uploadRequest(t, converter.ToolTextToPDF, map[string][]byte{"note.txt": []byte("hello\nworld")}, nil))

		gt.Equal(t, w.Code, http.StatusOK)
		gt.Equal(t, w.Header().Get("Content-Type"), "application/pdf")
		gt.Equal(t, w.Header().Get("Content-Disposition"), `attachment; filename=text-to-pdf.pdf`)
		gt.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
	})

	t.Run("unknown tool", func(t *testing.T) {
		e := newEnv(t)
		w := e.do(uploadRequest(t, "pdf-to-word", map[string][]byte{"a.pdf": []byte("x")}, nil))
		gt.Equal(t, w.Code, http.StatusBadRequest)
		gt.Equal(t, decode(t, w)["error"].(string), "Unsupported tool")
	})

	t.Run("no files", func(t *testing.T) {
		e := newEnv(t)
		w := e.do(uploadRequest(t, converter.ToolPDFMerge, nil, nil))
		gt.Equal(t, w.Code, http.StatusBadRequest)
		gt.Equal(t, decode(t, w)["error"].(string), "No files provided")
	})

	t.Run("office unavailable", func(t *testing.T) {
		e := newEnv(t)
		doc := []byte("PK\x03\x04 not really a docx")
		w := e.do(uploadRequest(t, converter.ToolWordToPDF, map[string][]byte{"a.docx": doc}, nil))
		gt.True(t, w.Code == http.StatusServiceUnavailable || w.Code == http.StatusBadRequest)
	})

	t.Run("password required", func(t *testing.T) {
		e := newEnv(t)
		pdf, err := converter.TextToPDF("secret")
		gt.NoError(t, err)
		w := e.do(uploadRequest(t, converter.ToolPDFPassword, map[string][]byte{"a.pdf": pdf}, nil))
		gt.Equal(t, w.Code, http.StatusBadRequest)
	})
}

func TestRenderJobLifecycle(t *testing.T) {
	e := newEnv(t)
	pdf, err := converter.TextToPDF("page one")
	gt.NoError(t, err)

	w := e.do(uploadRequest(t, converter.ToolPDFToImage, map[string][]byte{"doc.pdf": pdf}, nil))
	gt.Equal(t, w.Code, http.StatusAccepted)
	created := decode(t, w)
	id, _ := created["job_id"].(string)
	gt.True(t, id != "")
	gt.Equal(t, created["status"].(string), "queued")
	gt.Equal(t, created["status_url"].(string), "/api/jobs/"+id)

	ctx := context.Background()
	msg, ok, err := e.queue.Dequeue(ctx, "test", time.Second)
	gt.NoError(t, err)
	gt.True(t, ok)
	gt.Equal(t, msg.Task.JobID, id)

	fakeRender := func(_ []byte, opts imagerender.Options, fn func(imagerender.Page) error) (int, error) {
		for i := 1; i <= 3; i++ {
			if err := fn(imagerender.Page{Number: i, Name: imagerender.PageName(i, imagerender.FormatPNG), Data: []byte{byte(i)}}); err != nil {
				return i - 1, err
			}
		}
		return 3, nil
	}
	worker := dispatcher.New(dispatcher.Config{}, e.queue, e.deps.Jobs, e.storage, dispatcher.WithRenderFunc(fakeRender))
	worker.Process(ctx, msg.Task)

	w = e.do(httptest.NewRequest(http.MethodGet, "/api/jobs/"+id, nil))
	gt.Equal(t, w.Code, http.StatusOK)
	var view struct {
		Status    string            `json:"status"`
		Artifacts []export.Artifact `json:"artifacts"`
		ExportURL string            `json:"export_url"`
	}
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	gt.Equal(t, view.Status, "success")
	gt.Equal(t, len(view.Artifacts), 3)
	gt.Equal(t, view.Artifacts[1].URL, "/api/jobs/"+id+"/artifacts/2")
	gt.False(t, strings.Contains(w.Body.String(), "file://"))

	w = e.do(exportRequest(id, `{"range":"3, 1"}`))
	gt.Equal(t, w.Code, http.StatusOK)
	gt.Equal(t, w.Header().Get("Content-Disposition"), `attachment; filename="pages-3,1.zip"`)
}

func TestArtifact(t *testing.T) {
	e := newEnv(t)
	e.seedJob(t, "job-a", 2)

	w := e.do(httptest.NewRequest(http.MethodGet, "/api/jobs/job-a/artifacts/2", nil))
	gt.Equal(t, w.Code, http.StatusOK)
	gt.Equal(t, w.Body.String(), "png page-2.png")
	gt.Equal(t, w.Header().Get("Content-Disposition"), `inline; filename=page-2.png`)

	w = e.do(httptest.NewRequest(http.MethodGet, "/api/jobs/job-a/artifacts/1?download=1", nil))
	gt.Equal(t, w.Header().Get("Content-Disposition"), `attachment; filename=page-1.png`)

	w = e.do(httptest.NewRequest(http.MethodGet, "/api/jobs/job-a/artifacts/3", nil))
	gt.Equal(t, w.Code, http.StatusNotFound)

	w = e.do(httptest.NewRequest(http.MethodGet, "/api/jobs/job-a/artifacts/zero", nil))
	gt.Equal(t, w.Code, http.StatusBadRequest)
}

func TestExport(t *testing.T) {
	e := newEnv(t)
	e.seedJob(t, "job-e", 5)

	t.Run("all", func(t *testing.T) {
		w := e.do(exportRequest("job-e", `{"all":true}`))
		gt.Equal(t, w.Code, http.StatusOK)
		gt.Equal(t, w.Header().Get("Content-Type"), "application/zip")
		gt.Equal(t, w.Header().Get("Content-Disposition"), `attachment; filename=pdf-images.zip`)
	})

	t.Run("download index", func(t *testing.T) {
		w := e.do(exportRequest("job-e", `{"index":-1}`))
		gt.Equal(t, w.Code, http.StatusOK)
		gt.Equal(t, w.Header().Get("Content-Disposition"), `attachment; filename=pdf-images.zip`)

		w = e.do(exportRequest("job-e", `{"index":1}`))
		gt.Equal(t, w.Code, http.StatusOK)
		gt.Equal(t, w.Header().Get("Content-Disposition"), `attachment; filename=page-2.png`)
	})

	t.Run("picked pages", func(t *testing.T) {
		w := e.do(exportRequest("job-e", `{"pages":[4,2]}`))
		gt.Equal(t, w.Code, http.StatusOK)
		gt.Equal(t, w.Header().Get("Content-Disposition"), `attachment; filename="pages-2,4.zip"`)
	})

	t.Run("range with ignored tokens", func(t *testing.T) {
		w := e.do(exportRequest("job-e", `{"range":"2-3, x, 9"}`))
		gt.Equal(t, w.Code, http.StatusOK)
		gt.Equal(t, w.Header().Get("X-Ignored-Tokens"), "x, 9")
	})

	t.Run("range text with header characters", func(t *testing.T) {
		w := e.do(exportRequest("job-e", `{"range":"1,\"x;y=z"}`))
		gt.Equal(t, w.Code, http.StatusOK)
		disposition, params, err := mime.ParseMediaType(w.Header().Get("Content-Disposition"))
		gt.NoError(t, err)
		gt.Equal(t, disposition, "attachment")
		gt.Equal(t, params["filename"], "pages-1,.zip")
	})

	t.Run("empty selection", func(t *testing.T) {
		w := e.do(exportRequest("job-e", `{"range":"abc"}`))
		gt.Equal(t, w.Code, http.StatusUnprocessableEntity)
		body := decode(t, w)
		gt.Equal(t, body["error"].(string), "no valid pages selected")
		gt.Equal(t, body["ignored"].([]any), []any{"abc"})
	})

	t.Run("missing artifact", func(t *testing.T) {
		gt.NoError(t, os.Remove(filepath.Join(e.storage.Root(), "jobs", "job-e", "page-3.png")))
		w := e.do(exportRequest("job-e", `{"range":"1-5"}`))
		gt.Equal(t, w.Code, http.StatusBadGateway)
		body := decode(t, w)
		gt.Equal(t, body["artifact"].(string), "page-3.png")
		gt.Equal(t, body["page"].(float64), 3)
		gt.True(t, body["retry"].(bool))
	})

	t.Run("bad json", func(t *testing.T) {
		w := e.do(exportRequest("job-e", `{`))
		gt.Equal(t, w.Code, http.StatusBadRequest)
	})
}

func TestExportUnfinishedJob(t *testing.T) {
	e := newEnv(t)
	gt.NoError(t, e.deps.Jobs.Save(context.Background(), store.Job{ID: "job-q", Status: store.StateProcessing}))

	w := e.do(exportRequest("job-q", `{"all":true}`))
	gt.Equal(t, w.Code, http.StatusConflict)
	gt.Equal(t, decode(t, w)["status"].(string), "processing")

	w = e.do(exportRequest("missing", `{"all":true}`))
	gt.Equal(t, w.Code, http.StatusNotFound)
}

func TestCancelJob(t *testing.T) {
	e := newEnv(t)
	e.seedJob(t, "job-c", 2)

	w := e.do(httptest.NewRequest(http.MethodDelete, "/api/jobs/job-c", nil))
	gt.Equal(t, w.Code, http.StatusOK)
	body := decode(t, w)
	gt.True(t, body["success"].(bool))
	gt.Equal(t, body["status"].(string), "cancelled")

	cancelled, err := e.queue.IsCancelled(context.Background(), "job-c")
	gt.NoError(t, err)
	gt.True(t, cancelled)

	_, err = os.Stat(filepath.Join(e.storage.Root(), "jobs", "job-c"))
	gt.True(t, os.IsNotExist(err))

	job, err := e.deps.Jobs.Get(context.Background(), "job-c")
	gt.NoError(t, err)
	gt.Equal(t, job.Status, store.StateCancelled)
	gt.Equal(t, len(job.Artifacts), 0)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)
	w := e.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	gt.Equal(t, w.Code, http.StatusOK)

	w = e.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	gt.Equal(t, w.Code, http.StatusOK)

	// no status checker configured
	w = e.do(httptest.NewRequest(http.MethodGet, "/status", nil))
	gt.Equal(t, w.Code, http.StatusServiceUnavailable)
}

func TestSweeper(t *testing.T) {
	e := newEnv(t)
	e.seedJob(t, "job-old", 2)

	s := orchestrator.NewSweeper(e.storage, time.Hour, time.Minute)
	gt.Equal(t, s.SweepOnce(context.Background()), 0)

	old := time.Now().Add(-2 * time.Hour)
	for _, name := range []string{"page-1.png", "page-2.png"} {
		p := filepath.Join(e.storage.Root(), "jobs", "job-old", name)
		gt.NoError(t, os.Chtimes(p, old, old))
	}
	gt.Equal(t, s.SweepOnce(context.Background()), 2)
}

func TestMonitorQueueStopsOnCancel(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		orchestrator.MonitorQueue(ctx, e.queue, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

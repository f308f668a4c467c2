package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/toringerhartCAMM/QC/internal/checks"
	"github.com/toringerhartCAMM/QC/internal/config"
	"github.com/toringerhartCAMM/QC/internal/engine"
	"github.com/toringerhartCAMM/QC/internal/imagestore"
	"github.com/toringerhartCAMM/QC/internal/imagestore/imagestoretest"
	"github.com/toringerhartCAMM/QC/internal/journal"
	"github.com/toringerhartCAMM/QC/internal/query"
	"github.com/toringerhartCAMM/QC/internal/storage"
)

func newTestHandler(t *testing.T, srv *imagestoretest.Server) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	client, err := imagestore.NewClientWithBaseURL(srv.URL(), "importer", "secret", 5*time.Second)
	if err != nil {
		t.Fatalf("NewClientWithBaseURL: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	jrnl, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	t.Cleanup(func() { jrnl.Close() })

	cfg := config.Default()
	planes := storage.NewRemoteSource(client)
	registry := checks.NewRegistry(planes, client.UpdateService(), cfg.Checks.SaturationThreshold)
	eng := engine.New(client, jrnl, cfg.Checks.ContinueOnError)
	builder := query.NewBuilder(client.QueryService())

	return NewHandler(eng, registry, builder, client.RoiService(), cfg)
}

func doRequest(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := imagestoretest.New("importer", "secret")
	defer srv.Close()
	h := newTestHandler(t, srv)

	w := doRequest(t, h, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Status string   `json:"status"`
		Checks []string `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || len(body.Checks) != 3 {
		t.Errorf("body = %+v", body)
	}
}

func TestRunCheckEndpoint(t *testing.T) {
	srv := imagestoretest.New("importer", "secret")
	defer srv.Close()
	srv.AddPlate(&imagestoretest.PlateFixture{ID: 1, Name: "plate-1"})
	srv.AddImage(&imagestoretest.ImageFixture{
		ID: 10, Name: "well-A1", PlateID: 1,
		SizeZ: 1, SizeC: 1, SizeT: 1, SizeX: 2, SizeY: 2,
		ChannelLabels: []string{"DAPI"},
		PixelsType:    "uint16",
		Planes: map[[3]int][]float64{
			{0, 0, 0}: {10, 20, 30, 40},
		},
	})
	h := newTestHandler(t, srv)

	w := doRequest(t, h, http.MethodPost, "/checks/contrast/run")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var summary engine.RunSummary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.Check != "ContrastMeasure" || summary.Succeeded != 1 {
		t.Errorf("summary = %+v", summary)
	}

	// The processed image now carries the completion tag.
	tags := srv.ImageTagValues(10)
	if len(tags) != 1 || tags[0] != "#ContrastMeasure_v0.1" {
		t.Errorf("tags = %v", tags)
	}
}

func TestRunUnknownCheck(t *testing.T) {
	srv := imagestoretest.New("importer", "secret")
	defer srv.Close()
	h := newTestHandler(t, srv)

	w := doRequest(t, h, http.MethodPost, "/checks/sharpness/run")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestSearchImagesEndpoint(t *testing.T) {
	srv := imagestoretest.New("importer", "secret")
	defer srv.Close()
	srv.AddImage(&imagestoretest.ImageFixture{ID: 1, Filename: "/data/a.tif"})
	srv.AddImage(&imagestoretest.ImageFixture{ID: 2, Filename: "/data/b.png"})
	h := newTestHandler(t, srv)

	w := doRequest(t, h, http.MethodGet, "/images?filename=%25.tif")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var body struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.IDs) != 1 || body.IDs[0] != 1 {
		t.Errorf("ids = %v, want [1]", body.IDs)
	}
}

func TestSearchImagesValidation(t *testing.T) {
	srv := imagestoretest.New("importer", "secret")
	defer srv.Close()
	h := newTestHandler(t, srv)

	tests := []struct {
		name   string
		target string
	}{
		{"bad noqc", "/images?noqc=maybe"},
		{"bad start", "/images?start=yesterday&end=2024-06-01T00:00:00Z"},
		{"no criteria", "/images"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, h, http.MethodGet, tt.target)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestListROIsEndpoint(t *testing.T) {
	srv := imagestoretest.New("importer", "secret")
	defer srv.Close()
	srv.AddImage(&imagestoretest.ImageFixture{ID: 10})
	h := newTestHandler(t, srv)

	w := doRequest(t, h, http.MethodGet, "/images/10/rois")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var body struct {
		ROIs []imagestore.ROI `json:"rois"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.ROIs) != 0 {
		t.Errorf("rois = %v, want none", body.ROIs)
	}

	if w := doRequest(t, h, http.MethodGet, "/images/x/rois"); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", w.Code)
	}
}

func TestRemoveEndpoint(t *testing.T) {
	srv := imagestoretest.New("importer", "secret")
	defer srv.Close()
	srv.AddPlate(&imagestoretest.PlateFixture{ID: 1, Name: "plate-1"})
	srv.AddImage(&imagestoretest.ImageFixture{
		ID: 10, PlateID: 1,
		SizeZ: 1, SizeC: 1, SizeT: 1, SizeX: 2, SizeY: 2,
		PixelsType: "uint16",
		Planes: map[[3]int][]float64{
			{0, 0, 0}: {10, 20, 30, 40},
		},
	})
	h := newTestHandler(t, srv)

	if w := doRequest(t, h, http.MethodPost, "/checks/contrast/run"); w.Code != http.StatusOK {
		t.Fatalf("run status = %d", w.Code)
	}

	w := doRequest(t, h, http.MethodDelete, "/checks/contrast/images/10")
	if w.Code != http.StatusNoContent {
		t.Fatalf("remove status = %d, body %s", w.Code, w.Body.String())
	}
	if anns := srv.ImageAnnotations(10, "ContrastMeasure.qualitycheck"); len(anns) != 0 {
		t.Errorf("annotations after remove = %v", anns)
	}

	w = doRequest(t, h, http.MethodDelete, "/checks/contrast/images/not-a-number")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", w.Code)
	}
}

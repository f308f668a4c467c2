package imagestore

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/toringerhartCAMM/QC/internal/errors"
	"github.com/toringerhartCAMM/QC/internal/imagestore/imagestoretest"
)

func TestNewClientRequiresCredentials(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
	}{
		{"no username", "", "secret"},
		{"no password", "importer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient("localhost", 4064, tt.username, tt.password, time.Second)
			if err == nil {
				t.Fatal("expected configuration error")
			}
			if !apperrors.IsType(err, apperrors.ErrorTypeConfiguration) {
				t.Errorf("error type = %v, want configuration", err)
			}
		})
	}
}

func TestConnectRejectsBadCredentials(t *testing.T) {
	srv := imagestoretest.New("importer", "secret")
	defer srv.Close()

	client, err := NewClientWithBaseURL(srv.URL(), "importer", "wrong", time.Second)
	if err != nil {
		t.Fatalf("NewClientWithBaseURL: %v", err)
	}
	err = client.Connect(context.Background())
	if err == nil {
		t.Fatal("expected connection error")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeConnection) {
		t.Errorf("error type = %v, want connection", err)
	}
	if client.Connected() {
		t.Error("client reports connected after failed login")
	}
}

func connectedClient(t *testing.T, srv *imagestoretest.Server) *Client {
	t.Helper()
	client, err := NewClientWithBaseURL(srv.URL(), "importer", "secret", 5*time.Second)
	if err != nil {
		t.Fatalf("NewClientWithBaseURL: %v", err)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return client
}

func TestGetImage(t *testing.T) {
	srv := imagestoretest.New("importer", "secret")
	defer srv.Close()
	srv.AddImage(&imagestoretest.ImageFixture{
		ID: 7, Name: "well-A1",
		SizeZ: 1, SizeC: 2, SizeT: 1, SizeX: 4, SizeY: 3,
		ChannelLabels: []string{"DAPI", "GFP"},
		PixelsType:    "uint16",
	})

	client := connectedClient(t, srv)
	img, err := client.GetImage(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetImage: %v", err)
	}
	if img.ID != 7 || img.Name != "well-A1" || img.SizeC != 2 {
		t.Errorf("image = %+v", img)
	}
	if img.MaxPixelValue() != 65535 {
		t.Errorf("MaxPixelValue = %g, want 65535", img.MaxPixelValue())
	}
}

func TestGetImageNotFound(t *testing.T) {
	srv := imagestoretest.New("importer", "secret")
	defer srv.Close()

	client := connectedClient(t, srv)
	_, err := client.GetImage(context.Background(), 99)
	if err == nil {
		t.Fatal("expected not-found error")
	}
	if !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("error type = %v, want not found", err)
	}
}

func TestGetPlane(t *testing.T) {
	srv := imagestoretest.New("importer", "secret")
	defer srv.Close()
	srv.AddImage(&imagestoretest.ImageFixture{
		ID: 7, SizeZ: 1, SizeC: 1, SizeT: 1, SizeX: 2, SizeY: 2,
		Planes: map[[3]int][]float64{
			{0, 0, 0}: {1, 2, 3, 4},
		},
	})

	client := connectedClient(t, srv)
	plane, err := client.GetPlane(context.Background(), 7, 0, 0, 0)
	if err != nil {
		t.Fatalf("GetPlane: %v", err)
	}
	if plane.Width != 2 || plane.Height != 2 {
		t.Errorf("plane size = %dx%d", plane.Width, plane.Height)
	}
	if got := plane.At(1, 0); got != 3 {
		t.Errorf("At(1,0) = %g, want 3", got)
	}
}

func TestReconnectRetriesOnceAfterSessionExpiry(t *testing.T) {
	srv := imagestoretest.New("importer", "secret")
	defer srv.Close()
	srv.AddImage(&imagestoretest.ImageFixture{ID: 7, SizeZ: 1, SizeC: 1, SizeT: 1})

	client := connectedClient(t, srv)
	if srv.LoginCount() != 1 {
		t.Fatalf("login count = %d", srv.LoginCount())
	}

	srv.ExpireSession()
	img, err := client.GetImage(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetImage after expiry: %v", err)
	}
	if img.ID != 7 {
		t.Errorf("image ID = %d", img.ID)
	}
	if srv.LoginCount() != 2 {
		t.Errorf("login count = %d, want 2 (one reconnect)", srv.LoginCount())
	}
}

func TestAnnotationRoundTrip(t *testing.T) {
	srv := imagestoretest.New("importer", "secret")
	defer srv.Close()
	srv.AddImage(&imagestoretest.ImageFixture{ID: 7})

	client := connectedClient(t, srv)
	update := client.UpdateService()

	annID, err := update.SaveAnnotation(context.Background(), Annotation{
		Kind:      KindTag,
		Namespace: "example.qualitycheck",
		TextValue: "#Example_v0.1",
	})
	if err != nil {
		t.Fatalf("SaveAnnotation: %v", err)
	}
	if err := update.LinkImageAnnotation(context.Background(), 7, annID); err != nil {
		t.Fatalf("LinkImageAnnotation: %v", err)
	}

	anns, err := client.ListAnnotations(context.Background(), 7, "example.qualitycheck")
	if err != nil {
		t.Fatalf("ListAnnotations: %v", err)
	}
	if len(anns) != 1 || anns[0].TextValue != "#Example_v0.1" {
		t.Fatalf("annotations = %+v", anns)
	}

	// Annotations in other namespaces stay invisible.
	other, err := client.ListAnnotations(context.Background(), 7, "other.qualitycheck")
	if err != nil {
		t.Fatalf("ListAnnotations other ns: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("other namespace sees %v", other)
	}

	if err := update.DeleteAnnotation(context.Background(), annID); err != nil {
		t.Fatalf("DeleteAnnotation: %v", err)
	}
	anns, err = client.ListAnnotations(context.Background(), 7, "example.qualitycheck")
	if err != nil {
		t.Fatalf("ListAnnotations after delete: %v", err)
	}
	if len(anns) != 0 {
		t.Errorf("annotations after delete = %+v", anns)
	}
}

func TestFindImageIDs(t *testing.T) {
	srv := imagestoretest.New("importer", "secret")
	defer srv.Close()
	srv.AddImage(&imagestoretest.ImageFixture{ID: 1, Filename: "a.tif"})
	srv.AddImage(&imagestoretest.ImageFixture{ID: 2, Filename: "b.png"})

	client := connectedClient(t, srv)
	ids, err := client.QueryService().FindImageIDs(context.Background(),
		"select image from Image image where image in ( ... )",
		map[string]interface{}{"filename": "%.tif"})
	if err != nil {
		t.Fatalf("FindImageIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Errorf("ids = %v, want [1]", ids)
	}
}

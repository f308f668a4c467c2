// Package imagestoretest provides an in-memory fake of the remote
// image server for tests. It honors the same wire contract as the real
// server: session login, image metadata, pixel planes, annotations and
// the image query endpoint.
//
// The query endpoint does not parse HQL. It filters fixtures from the
// named bind parameters alone, which is enough to exercise every query
// the builder and the engine compose.
package imagestoretest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ImageFixture is one image known to the fake server.
type ImageFixture struct {
	ID            int64
	Name          string
	SizeZ         int
	SizeC         int
	SizeT         int
	SizeX         int
	SizeY         int
	ChannelLabels []string
	PixelsType    string
	PlateID       int64
	Filename      string
	Acquisition   string
	Created       time.Time

	// Planes indexed by [z, c, t].
	Planes map[[3]int][]float64

	Annotations []annotation
}

// PlateFixture is one plate known to the fake server.
type PlateFixture struct {
	ID          int64
	Name        string
	Annotations []annotation
}

type annotation struct {
	ID          int64       `json:"id"`
	Kind        string      `json:"kind"`
	Namespace   string      `json:"namespace"`
	Name        string      `json:"name,omitempty"`
	TextValue   string      `json:"text_value,omitempty"`
	MapValue    [][2]string `json:"map_value,omitempty"`
	DoubleValue float64     `json:"double_value,omitempty"`
	FileName    string      `json:"file_name,omitempty"`
	MimeType    string      `json:"mime_type,omitempty"`
}

// Server is an in-memory image server bound to an httptest listener.
type Server struct {
	Username string
	Password string

	mu         sync.Mutex
	images     map[int64]*ImageFixture
	plates     map[int64]*PlateFixture
	unlinked   map[int64]annotation
	nextAnnID  int64
	sessionKey string
	expired    bool
	loginCount int

	httpSrv *httptest.Server
}

// New starts a fake server accepting the given credentials.
func New(username, password string) *Server {
	s := &Server{
		Username:  username,
		Password:  password,
		images:    make(map[int64]*ImageFixture),
		plates:    make(map[int64]*PlateFixture),
		unlinked:  make(map[int64]annotation),
		nextAnnID: 1000,
	}
	s.httpSrv = httptest.NewServer(http.HandlerFunc(s.route))
	return s
}

// URL returns the server's base URL.
func (s *Server) URL() string { return s.httpSrv.URL }

// Close shuts the listener down.
func (s *Server) Close() { s.httpSrv.Close() }

// AddImage registers an image fixture.
func (s *Server) AddImage(img *ImageFixture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if img.Planes == nil {
		img.Planes = make(map[[3]int][]float64)
	}
	s.images[img.ID] = img
}

// AddPlate registers a plate fixture.
func (s *Server) AddPlate(p *PlateFixture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plates[p.ID] = p
}

// TagImage links a tag annotation with the given text to an image.
func (s *Server) TagImage(imageID int64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img := s.images[imageID]
	s.nextAnnID++
	img.Annotations = append(img.Annotations, annotation{ID: s.nextAnnID, Kind: "tag", TextValue: text})
}

// TagPlate links a tag annotation with the given text to a plate.
func (s *Server) TagPlate(plateID int64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.plates[plateID]
	s.nextAnnID++
	p.Annotations = append(p.Annotations, annotation{ID: s.nextAnnID, Kind: "tag", TextValue: text})
}

// ImageAnnotations returns copies of the annotations linked to an
// image, optionally restricted to one namespace.
func (s *Server) ImageAnnotations(imageID int64, namespace string) []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []map[string]interface{}
	for _, a := range s.images[imageID].Annotations {
		if namespace != "" && a.Namespace != namespace {
			continue
		}
		out = append(out, map[string]interface{}{
			"id": a.ID, "kind": a.Kind, "namespace": a.Namespace,
			"name": a.Name, "text_value": a.TextValue,
		})
	}
	return out
}

// ImageTagValues returns the text values of all tag annotations linked
// to an image.
func (s *Server) ImageTagValues(imageID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, a := range s.images[imageID].Annotations {
		if a.Kind == "tag" {
			out = append(out, a.TextValue)
		}
	}
	return out
}

// LoginCount reports how many successful logins happened.
func (s *Server) LoginCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginCount
}

// ExpireSession invalidates the current session so the next
// authenticated call returns 401.
func (s *Server) ExpireSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired = true
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost && r.URL.Path == "/api/login" {
		s.handleLogin(w, r)
		return
	}

	s.mu.Lock()
	ok := !s.expired && s.sessionKey != "" && r.Header.Get("X-Session-Key") == s.sessionKey
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/query/images":
		s.handleQuery(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/annotations":
		s.handleSaveAnnotation(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/annotations/files":
		s.handleSaveFileAnnotation(w, r)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/annotations/"):
		s.handleDeleteAnnotation(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/images/"):
		s.handleImages(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil ||
		creds.Username != s.Username || creds.Password != s.Password {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	s.loginCount++
	s.sessionKey = fmt.Sprintf("session-%d", s.loginCount)
	s.expired = false
	key := s.sessionKey
	s.mu.Unlock()
	writeJSON(w, map[string]string{"session_key": key})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query  string                 `json:"query"`
		Params map[string]interface{} `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for _, img := range s.images {
		if s.matches(img, req.Params) {
			ids = append(ids, img.ID)
		}
	}
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, map[string][]int64{"ids": ids})
}

// matches applies the bound parameters to one image fixture. The
// eligibility query binds qcTag; criteria queries bind the criteria
// names directly.
func (s *Server) matches(img *ImageFixture, params map[string]interface{}) bool {
	if v, ok := params["qcTag"]; ok {
		qcTag, _ := v.(string)
		if s.imageTagged(img, qcTag) || s.imageTagged(img, "#noqc") {
			return false
		}
		if img.PlateID != 0 && s.plateTagged(img.PlateID, "#noqc") {
			return false
		}
		return true
	}

	for key, raw := range params {
		switch key {
		case "filename":
			if !likeMatch(raw.(string), img.Filename) {
				return false
			}
		case "plate":
			p := s.plates[img.PlateID]
			if p == nil || !likeMatch(raw.(string), p.Name) {
				return false
			}
		case "acquisition":
			if !likeMatch(raw.(string), img.Acquisition) {
				return false
			}
		case "with_tag":
			if !s.imageTagged(img, raw.(string)) {
				return false
			}
		case "without_tag":
			if s.imageTagged(img, raw.(string)) {
				return false
			}
		case "noqc":
			if s.imageTagged(img, raw.(string)) {
				return false
			}
			if img.PlateID != 0 && s.plateTagged(img.PlateID, raw.(string)) {
				return false
			}
		case "startDate":
			ms := int64(raw.(float64))
			if img.Created.UnixMilli() < ms {
				return false
			}
		case "endDate":
			ms := int64(raw.(float64))
			if img.Created.UnixMilli() > ms {
				return false
			}
		}
	}
	return true
}

func (s *Server) imageTagged(img *ImageFixture, pattern string) bool {
	for _, a := range img.Annotations {
		if a.Kind == "tag" && likeMatch(pattern, a.TextValue) {
			return true
		}
	}
	return false
}

func (s *Server) plateTagged(plateID int64, pattern string) bool {
	p := s.plates[plateID]
	if p == nil {
		return false
	}
	for _, a := range p.Annotations {
		if a.Kind == "tag" && likeMatch(pattern, a.TextValue) {
			return true
		}
	}
	return false
}

// likeMatch implements anchored SQL LIKE with % wildcards.
func likeMatch(pattern, value string) bool {
	parts := strings.Split(pattern, "%")
	pos := 0
	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(value[pos:], part)
		if idx < 0 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		pos += idx + len(part)
	}
	if !strings.HasSuffix(pattern, "%") && len(parts) > 0 && parts[len(parts)-1] != "" {
		return strings.HasSuffix(value, parts[len(parts)-1])
	}
	return true
}

func (s *Server) handleSaveAnnotation(w http.ResponseWriter, r *http.Request) {
	var ann annotation
	if err := json.NewDecoder(r.Body).Decode(&ann); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.nextAnnID++
	ann.ID = s.nextAnnID
	s.unlinked[ann.ID] = ann
	s.mu.Unlock()
	writeJSON(w, map[string]int64{"id": ann.ID})
}

func (s *Server) handleSaveFileAnnotation(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	_, header, err := r.FormFile("file")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	ann := annotation{
		Kind:      "file",
		Namespace: r.FormValue("namespace"),
		MimeType:  r.FormValue("mime_type"),
		FileName:  header.Filename,
	}
	s.mu.Lock()
	s.nextAnnID++
	ann.ID = s.nextAnnID
	s.unlinked[ann.ID] = ann
	s.mu.Unlock()
	writeJSON(w, map[string]int64{"id": ann.ID})
}

func (s *Server) handleDeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/annotations/"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.unlinked, id)
	for _, img := range s.images {
		kept := img.Annotations[:0]
		for _, a := range img.Annotations {
			if a.ID != id {
				kept = append(kept, a)
			}
		}
		img.Annotations = kept
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/images/")
	parts := strings.Split(rest, "/")
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	img := s.images[id]
	s.mu.Unlock()
	if img == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		writeJSON(w, map[string]interface{}{
			"id": img.ID, "name": img.Name,
			"size_z": img.SizeZ, "size_c": img.SizeC, "size_t": img.SizeT,
			"size_x": img.SizeX, "size_y": img.SizeY,
			"channel_labels": img.ChannelLabels,
			"pixels_type":    img.PixelsType,
		})
	case len(parts) == 5 && parts[1] == "planes" && r.Method == http.MethodGet:
		z, _ := strconv.Atoi(parts[2])
		c, _ := strconv.Atoi(parts[3])
		t, _ := strconv.Atoi(parts[4])
		s.mu.Lock()
		values, ok := img.Planes[[3]int{z, c, t}]
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]interface{}{
			"width": img.SizeX, "height": img.SizeY, "values": values,
		})
	case len(parts) == 2 && parts[1] == "annotations" && r.Method == http.MethodGet:
		ns := r.URL.Query().Get("ns")
		s.mu.Lock()
		anns := []annotation{}
		for _, a := range img.Annotations {
			if ns == "" || a.Namespace == ns {
				anns = append(anns, a)
			}
		}
		s.mu.Unlock()
		writeJSON(w, map[string]interface{}{"annotations": anns})
	case len(parts) == 2 && parts[1] == "annotation-links" && r.Method == http.MethodPost:
		var link struct {
			AnnotationID int64 `json:"annotation_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&link); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		ann, ok := s.unlinked[link.AnnotationID]
		if ok {
			img.Annotations = append(img.Annotations, ann)
		}
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusCreated)
	case len(parts) == 2 && parts[1] == "rois" && r.Method == http.MethodGet:
		writeJSON(w, map[string]interface{}{"rois": []interface{}{}})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

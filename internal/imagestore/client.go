package imagestore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	apperrors "github.com/toringerhartCAMM/QC/internal/errors"
	"github.com/toringerhartCAMM/QC/internal/logger"
)

const sessionHeader = "X-Session-Key"

// Client owns the credentials and session for one remote image server.
// It is not safe for concurrent use: all callers share one mutable
// session key with no locking.
type Client struct {
	baseURL    string
	username   string
	password   string
	http       *http.Client
	sessionKey string
}

// NewClient creates a client for the server at host:port. It fails
// with a configuration error when credentials are missing; no network
// traffic happens until Connect.
func NewClient(host string, port int, username, password string, timeout time.Duration) (*Client, error) {
	if username == "" {
		return nil, apperrors.NewConfigurationError("cannot connect: no username", nil)
	}
	if password == "" {
		return nil, apperrors.NewConfigurationError("cannot connect: no password", nil)
	}
	base := fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(port)))
	return newClient(base, username, password, timeout), nil
}

// NewClientWithBaseURL is NewClient for callers that already hold a
// full base URL (tests, reverse-proxied deployments).
func NewClientWithBaseURL(baseURL, username, password string, timeout time.Duration) (*Client, error) {
	if username == "" {
		return nil, apperrors.NewConfigurationError("cannot connect: no username", nil)
	}
	if password == "" {
		return nil, apperrors.NewConfigurationError("cannot connect: no password", nil)
	}
	return newClient(baseURL, username, password, timeout), nil
}

func newClient(baseURL, username, password string, timeout time.Duration) *Client {
	// Transport tuned for a single long-lived session making many
	// small JSON calls plus occasional large plane downloads.
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true,
		},
	}
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		http: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// Connect establishes a session by authenticating against the login
// endpoint. Any failure is a connection error.
func (c *Client) Connect(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return apperrors.NewInternalError("encode login request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/login", bytes.NewReader(body))
	if err != nil {
		return apperrors.NewConnectionError("build login request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewConnectionError(
			fmt.Sprintf("connection %s@%s failed", c.username, c.baseURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.NewConnectionError(
			fmt.Sprintf("connection %s@%s failed: status %d", c.username, c.baseURL, resp.StatusCode), nil)
	}

	var out struct {
		SessionKey string `json:"session_key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return apperrors.NewConnectionError("decode login response", err)
	}
	c.sessionKey = out.SessionKey

	logger.WithFields(logrus.Fields{
		"server": c.baseURL,
		"user":   c.username,
	}).Debug("Session established")
	return nil
}

// Connected reports whether a session key is held. It says nothing
// about whether the server still honors it.
func (c *Client) Connected() bool {
	return c.sessionKey != ""
}

// withReconnect runs f and, when the transport reports the session as
// lost, re-establishes it and retries f exactly once.
func (c *Client) withReconnect(ctx context.Context, f func() error) error {
	err := f()
	if !apperrors.IsType(err, apperrors.ErrorTypeTransportLost) {
		return err
	}
	logger.WithField("server", c.baseURL).Warn("Session lost, reconnecting")
	if cerr := c.Connect(ctx); cerr != nil {
		return cerr
	}
	return f()
}

// doJSON performs one authenticated JSON round trip. A 401 means the
// session expired and is surfaced as a transport-lost error so the
// caller's reconnect wrapper can act on it.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return apperrors.NewInternalError("encode request body", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperrors.NewInternalError("build request", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(sessionHeader, c.sessionKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewConnectionError(fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return apperrors.NewTransportLostError(fmt.Sprintf("%s %s: session expired", method, path), nil)
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NewNotFoundError(fmt.Sprintf("%s %s", method, path), nil)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return apperrors.NewStorageError(fmt.Sprintf("%s %s: status %d", method, path, resp.StatusCode), nil)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.NewInternalError("decode response body", err)
		}
	}
	return nil
}

// uploadFile performs one authenticated multipart upload.
func (c *Client) uploadFile(ctx context.Context, path string, fields map[string]string, fileName string, file io.Reader, out interface{}) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return apperrors.NewInternalError("write multipart field", err)
		}
	}
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return apperrors.NewInternalError("create multipart file", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return apperrors.NewInternalError("copy file into multipart body", err)
	}
	if err := w.Close(); err != nil {
		return apperrors.NewInternalError("finalize multipart body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return apperrors.NewInternalError("build upload request", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set(sessionHeader, c.sessionKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.NewConnectionError("upload "+path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return apperrors.NewTransportLostError("upload "+path+": session expired", nil)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return apperrors.NewStorageError(fmt.Sprintf("upload %s: status %d", path, resp.StatusCode), nil)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.NewInternalError("decode upload response", err)
		}
	}
	return nil
}

// GetImage fetches the metadata snapshot for one image.
func (c *Client) GetImage(ctx context.Context, imageID int64) (*Image, error) {
	var img Image
	err := c.withReconnect(ctx, func() error {
		return c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/images/%d", imageID), nil, &img)
	})
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// GetPlane fetches one (Z,C,T) pixel plane.
func (c *Client) GetPlane(ctx context.Context, imageID int64, z, ch, t int) (*Plane, error) {
	var plane Plane
	err := c.withReconnect(ctx, func() error {
		return c.doJSON(ctx, http.MethodGet,
			fmt.Sprintf("/api/images/%d/planes/%d/%d/%d", imageID, z, ch, t), nil, &plane)
	})
	if err != nil {
		return nil, err
	}
	if len(plane.Values) != plane.Width*plane.Height {
		return nil, apperrors.NewStorageError(
			fmt.Sprintf("plane for image %d has %d values, expected %d",
				imageID, len(plane.Values), plane.Width*plane.Height), nil)
	}
	return &plane, nil
}

// ListAnnotations fetches the annotations linked to an image,
// optionally restricted to one namespace.
func (c *Client) ListAnnotations(ctx context.Context, imageID int64, namespace string) ([]Annotation, error) {
	path := fmt.Sprintf("/api/images/%d/annotations", imageID)
	if namespace != "" {
		path += "?ns=" + namespace
	}
	var out struct {
		Annotations []Annotation `json:"annotations"`
	}
	err := c.withReconnect(ctx, func() error {
		return c.doJSON(ctx, http.MethodGet, path, nil, &out)
	})
	if err != nil {
		return nil, err
	}
	return out.Annotations, nil
}

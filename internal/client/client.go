// Package client is a Go client for the picshare HTTP API. Auth state lives
// in a SessionStore so that separate CLI invocations share one login.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"picshare/internal/models"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrNotLoggedIn  = errors.New("not logged in")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
}

type Client struct {
	baseURL  string
	http     *http.Client
	sessions SessionStore
}

// New returns a client for the API rooted at baseURL, e.g.
// http://localhost:5000/api/v1. A nil httpClient uses a 30s timeout client.
func New(baseURL string, sessions SessionStore, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if sessions == nil {
		sessions = NewMemorySessionStore()
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     httpClient,
		sessions: sessions,
	}
}

type request struct {
	method      string
	path        string
	body        []byte
	contentType string
	auth        bool
}

func (c *Client) send(ctx context.Context, req request, accessToken string, out interface{}) error {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return err
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

// do sends req, attaching the stored access token when req.auth is set. An
// expired access token is refreshed once and the request retried.
func (c *Client) do(ctx context.Context, req request, out interface{}) error {
	if !req.auth {
		return c.send(ctx, req, "", out)
	}

	session, err := c.sessions.Load(ctx)
	if errors.Is(err, ErrNoSession) {
		return ErrNotLoggedIn
	}
	if err != nil {
		return err
	}

	err = c.send(ctx, req, session.AccessToken, out)
	if !errors.Is(err, ErrUnauthorized) || session.RefreshToken == "" {
		return err
	}

	refreshed, refreshErr := c.Refresh(ctx)
	if refreshErr != nil {
		return err
	}
	return c.send(ctx, req, refreshed.AccessToken, out)
}

func jsonBody(v interface{}) ([]byte, string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

func multipartBody(fields map[string]string, fileField, filePath string) ([]byte, string, error) {
	buf := new(bytes.Buffer)
	writer := multipart.NewWriter(buf)

	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}

	if filePath != "" {
		file, err := os.Open(filePath)
		if err != nil {
			return nil, "", err
		}
		defer file.Close()

		part, err := writer.CreateFormFile(fileField, filepath.Base(filePath))
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, file); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

type RegisterParams struct {
	FullName   string
	Email      string
	Username   string
	Password   string
	AvatarPath string
}

func (c *Client) Register(ctx context.Context, p RegisterParams) (*models.User, error) {
	body, contentType, err := multipartBody(map[string]string{
		"fullName": p.FullName,
		"email":    p.Email,
		"username": p.Username,
		"password": p.Password,
	}, "avatar", p.AvatarPath)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := c.do(ctx, request{method: http.MethodPost, path: "/users/register", body: body, contentType: contentType}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Login authenticates by username, or by email when identifier contains an
// @, and stores the resulting session.
func (c *Client) Login(ctx context.Context, identifier, password string) (*Session, error) {
	payload := map[string]string{"password": password}
	if strings.Contains(identifier, "@") {
		payload["email"] = identifier
	} else {
		payload["username"] = identifier
	}
	body, contentType, err := jsonBody(payload)
	if err != nil {
		return nil, err
	}

	var session Session
	if err := c.do(ctx, request{method: http.MethodPost, path: "/users/login", body: body, contentType: contentType}, &session); err != nil {
		return nil, err
	}
	if err := c.sessions.Save(ctx, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Refresh trades the stored refresh token for a new session.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	current, err := c.sessions.Load(ctx)
	if errors.Is(err, ErrNoSession) {
		return nil, ErrNotLoggedIn
	}
	if err != nil {
		return nil, err
	}

	body, contentType, err := jsonBody(map[string]string{"refreshToken": current.RefreshToken})
	if err != nil {
		return nil, err
	}

	var session Session
	if err := c.do(ctx, request{method: http.MethodPost, path: "/users/refresh-token", body: body, contentType: contentType}, &session); err != nil {
		return nil, err
	}
	if err := c.sessions.Save(ctx, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Logout ends the server session and always clears the local one.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, request{method: http.MethodPost, path: "/users/logout", auth: true}, nil)
	if clearErr := c.sessions.Clear(ctx); clearErr != nil {
		return clearErr
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotLoggedIn) {
		return nil
	}
	return err
}

func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/users/me", auth: true}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) Profile(ctx context.Context, username string) (*models.Profile, error) {
	var profile models.Profile
	if err := c.do(ctx, request{method: http.MethodGet, path: "/users/" + url.PathEscape(username)}, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *Client) Upload(ctx context.Context, imagePath, description string) (*models.Image, error) {
	body, contentType, err := multipartBody(map[string]string{"description": description}, "image", imagePath)
	if err != nil {
		return nil, err
	}

	var image models.Image
	if err := c.do(ctx, request{method: http.MethodPost, path: "/images/upload", body: body, contentType: contentType, auth: true}, &image); err != nil {
		return nil, err
	}
	return &image, nil
}

func (c *Client) Get(ctx context.Context, imageID string) (*models.Image, error) {
	var image models.Image
	if err := c.do(ctx, request{method: http.MethodGet, path: "/images/" + url.PathEscape(imageID), auth: true}, &image); err != nil {
		return nil, err
	}
	return &image, nil
}

func (c *Client) Delete(ctx context.Context, imageID string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/images/" + url.PathEscape(imageID), auth: true}, nil)
}

// Recent fetches one page of the feed; zero values use the server defaults.
func (c *Client) Recent(ctx context.Context, page, limit int) (*models.RecentImages, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/images/recent"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var recent models.RecentImages
	if err := c.do(ctx, request{method: http.MethodGet, path: path}, &recent); err != nil {
		return nil, err
	}
	return &recent, nil
}

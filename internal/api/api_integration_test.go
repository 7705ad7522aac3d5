package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"picshare/internal/auth"
	"picshare/internal/models"
	"picshare/internal/service"

	"github.com/stretchr/testify/require"
)

var pngContent = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

type envelope[T any] struct {
	StatusCode int      `json:"statusCode"`
	Data       T        `json:"data"`
	Message    string   `json:"message"`
	Success    bool     `json:"success"`
	Errors     []string `json:"errors"`
	Stack      string   `json:"stack"`
}

func decodeEnvelope[T any](t *testing.T, rr *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	require.Equal(t, rr.Code, env.StatusCode)
	return env
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, time.Now().UnixNano())
}

func multipartBody(t *testing.T, fields map[string]string, fileField, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if fileField != "" {
		part, err := writer.CreateFormFile(fileField, filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func doRequest(t *testing.T, method, path string, body io.Reader, contentType, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	testHandler.ServeHTTP(rr, req)
	return rr
}

func doJSON(t *testing.T, method, path string, payload interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return doRequest(t, method, path, bytes.NewReader(body), "application/json", token)
}

func registerRequest(t *testing.T, username, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, map[string]string{
		"fullName": "Test " + username,
		"email":    email,
		"username": username,
		"password": password,
	}, "avatar", "avatar.png", pngContent)
	return doRequest(t, http.MethodPost, "/api/v1/users/register", body, contentType, "")
}

func registerTestUser(t *testing.T) *models.User {
	t.Helper()
	username := uniqueName("user")
	rr := registerRequest(t, username, username+"@example.com", "password123")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeEnvelope[*models.User](t, rr).Data
}

func loginTestUser(t *testing.T, username string) service.LoginResult {
	t.Helper()
	rr := doJSON(t, http.MethodPost, "/api/v1/users/login", LoginRequest{Username: username, Password: "password123"}, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decodeEnvelope[service.LoginResult](t, rr).Data
}

func uploadTestImage(t *testing.T, token, description string) *models.Image {
	t.Helper()
	body, contentType := multipartBody(t, map[string]string{"description": description}, "image", "photo.png", pngContent)
	rr := doRequest(t, http.MethodPost, "/api/v1/images/upload", body, contentType, token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decodeEnvelope[*models.Image](t, rr).Data
}

func TestRegisterHandler(t *testing.T) {
	username := uniqueName("reg")
	email := username + "@example.com"

	rr := registerRequest(t, username, email, "password123")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.NotContains(t, rr.Body.String(), "password")
	require.NotContains(t, rr.Body.String(), "refreshToken")

	env := decodeEnvelope[*models.User](t, rr)
	require.True(t, env.Success)
	require.Equal(t, username, env.Data.Username)
	require.True(t, strings.HasPrefix(env.Data.Avatar, testMediaURL+"/images/"))

	t.Run("duplicate username", func(t *testing.T) {
		rr := registerRequest(t, username, "other"+email, "password123")
		require.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("duplicate email", func(t *testing.T) {
		rr := registerRequest(t, uniqueName("other"), email, "password123")
		require.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("short password", func(t *testing.T) {
		name := uniqueName("short")
		rr := registerRequest(t, name, name+"@example.com", "1234567")
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("malformed email", func(t *testing.T) {
		rr := registerRequest(t, uniqueName("bad"), "not-an-email", "12345678")
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("missing avatar", func(t *testing.T) {
		name := uniqueName("noavatar")
		body, contentType := multipartBody(t, map[string]string{
			"fullName": "No Avatar",
			"email":    name + "@example.com",
			"username": name,
			"password": "password123",
		}, "", "", nil)
		rr := doRequest(t, http.MethodPost, "/api/v1/users/register", body, contentType, "")
		require.Equal(t, http.StatusBadRequest, rr.Code)
		require.Equal(t, "Avatar is required", decodeEnvelope[any](t, rr).Message)
	})

	t.Run("avatar is not an image", func(t *testing.T) {
		name := uniqueName("text")
		body, contentType := multipartBody(t, map[string]string{
			"fullName": "Text Avatar",
			"email":    name + "@example.com",
			"username": name,
			"password": "password123",
		}, "avatar", "avatar.txt", []byte("just some text"))
		rr := doRequest(t, http.MethodPost, "/api/v1/users/register", body, contentType, "")
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestLoginHandler(t *testing.T) {
	user := registerTestUser(t)

	t.Run("successful login sets cookies", func(t *testing.T) {
		rr := doJSON(t, http.MethodPost, "/api/v1/users/login", LoginRequest{Email: user.Email, Password: "password123"}, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		res := decodeEnvelope[service.LoginResult](t, rr).Data
		require.NotEmpty(t, res.AccessToken)
		require.NotEmpty(t, res.RefreshToken)
		require.Equal(t, user.ID, res.User.ID)

		cookies := map[string]*http.Cookie{}
		for _, c := range rr.Result().Cookies() {
			cookies[c.Name] = c
		}
		require.Contains(t, cookies, accessTokenCookie)
		require.Contains(t, cookies, refreshTokenCookie)
		require.True(t, cookies[accessTokenCookie].HttpOnly)
		require.Equal(t, res.AccessToken, cookies[accessTokenCookie].Value)
	})

	t.Run("invalid password", func(t *testing.T) {
		rr := doJSON(t, http.MethodPost, "/api/v1/users/login", LoginRequest{Username: user.Username, Password: "wrong_password"}, "")
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		rr := doJSON(t, http.MethodPost, "/api/v1/users/login", LoginRequest{Username: uniqueName("ghost"), Password: "password123"}, "")
		require.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("missing identifier", func(t *testing.T) {
		rr := doJSON(t, http.MethodPost, "/api/v1/users/login", LoginRequest{Password: "password123"}, "")
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAuthMiddleware(t *testing.T) {
	user := registerTestUser(t)
	tokens := loginTestUser(t, user.Username)

	t.Run("bearer header", func(t *testing.T) {
		rr := doRequest(t, http.MethodGet, "/api/v1/users/me", nil, "", tokens.AccessToken)
		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, user.Username, decodeEnvelope[*models.User](t, rr).Data.Username)
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
		req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: tokens.AccessToken})
		rr := httptest.NewRecorder()
		testHandler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		rr := doRequest(t, http.MethodGet, "/api/v1/users/me", nil, "", "")
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("tampered token", func(t *testing.T) {
		tampered := tokens.AccessToken[:len(tokens.AccessToken)-4] + "AAAA"
		if tampered == tokens.AccessToken {
			tampered = tokens.AccessToken[:len(tokens.AccessToken)-4] + "BBBB"
		}
		rr := doRequest(t, http.MethodGet, "/api/v1/users/me", nil, "", tampered)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		rr := doRequest(t, http.MethodGet, "/api/v1/users/me", nil, "", tokens.RefreshToken)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("upload without token never reaches the service", func(t *testing.T) {
		body, contentType := multipartBody(t, map[string]string{"description": "x"}, "image", "x.png", pngContent)
		rr := doRequest(t, http.MethodPost, "/api/v1/images/upload", body, contentType, "")
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		jwtCfg := testServer.config.JWT
		expiredIssuer := auth.NewTokenIssuer(jwtCfg.AccessSecret, -time.Minute, jwtCfg.RefreshSecret, jwtCfg.RefreshTTL)
		expired, err := expiredIssuer.IssueAccessToken(user)
		require.NoError(t, err)

		rr := doRequest(t, http.MethodGet, "/api/v1/users/me", nil, "", expired)
		require.Equal(t, http.StatusUnauthorized, rr.Code)

		body, contentType := multipartBody(t, map[string]string{"description": "too late"}, "image", "late.png", pngContent)
		rr = doRequest(t, http.MethodPost, "/api/v1/images/upload", body, contentType, expired)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
		require.False(t, decodeEnvelope[json.RawMessage](t, rr).Success)

		images, err := testServer.store.ListImagesByOwner(context.Background(), user.ID)
		require.NoError(t, err)
		require.Empty(t, images)
	})
}

func TestRefreshAndLogout(t *testing.T) {
	user := registerTestUser(t)
	tokens := loginTestUser(t, user.Username)

	rr := doJSON(t, http.MethodPost, "/api/v1/users/refresh-token", RefreshTokenRequest{RefreshToken: tokens.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rotated := decodeEnvelope[service.LoginResult](t, rr).Data
	require.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	rr = doJSON(t, http.MethodPost, "/api/v1/users/refresh-token", RefreshTokenRequest{RefreshToken: tokens.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code, "a rotated refresh token must not be accepted again")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil)
	req.AddCookie(&http.Cookie{Name: refreshTokenCookie, Value: rotated.RefreshToken})
	cookieRR := httptest.NewRecorder()
	testHandler.ServeHTTP(cookieRR, req)
	require.Equal(t, http.StatusOK, cookieRR.Code, cookieRR.Body.String())
	current := decodeEnvelope[service.LoginResult](t, cookieRR).Data

	rr = doRequest(t, http.MethodPost, "/api/v1/users/logout", nil, "", current.AccessToken)
	require.Equal(t, http.StatusOK, rr.Code)
	for _, c := range rr.Result().Cookies() {
		require.Empty(t, c.Value)
		require.Less(t, c.MaxAge, 0)
	}

	rr = doJSON(t, http.MethodPost, "/api/v1/users/refresh-token", RefreshTokenRequest{RefreshToken: current.RefreshToken}, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestImageLifecycle(t *testing.T) {
	owner := registerTestUser(t)
	ownerTokens := loginTestUser(t, owner.Username)
	other := registerTestUser(t)
	otherTokens := loginTestUser(t, other.Username)

	image := uploadTestImage(t, ownerTokens.AccessToken, "a quiet lake")
	require.Equal(t, "a quiet lake", image.Description)
	require.Equal(t, owner.Username, image.Owner.Username)
	require.True(t, strings.HasPrefix(image.URL, testMediaURL+"/images/"))

	t.Run("stored object is served", func(t *testing.T) {
		path := strings.TrimPrefix(image.URL, "http://media.test")
		rr := doRequest(t, http.MethodGet, path, nil, "", "")
		require.Equal(t, http.StatusOK, rr.Code)
		require.Equal(t, pngContent, rr.Body.Bytes())
	})

	t.Run("get by id", func(t *testing.T) {
		rr := doRequest(t, http.MethodGet, "/api/v1/images/"+image.ID, nil, "", otherTokens.AccessToken)
		require.Equal(t, http.StatusOK, rr.Code)
		got := decodeEnvelope[*models.Image](t, rr).Data
		require.Equal(t, image.ID, got.ID)
		require.Equal(t, image.URL, got.URL)
		require.Equal(t, image.Description, got.Description)
		require.Equal(t, owner.ID, got.Owner.ID)
	})

	t.Run("not owned delete is indistinguishable from missing", func(t *testing.T) {
		notOwned := doRequest(t, http.MethodDelete, "/api/v1/images/"+image.ID, nil, "", otherTokens.AccessToken)
		missing := doRequest(t, http.MethodDelete, "/api/v1/images/AAAAAAAAAAAAAAAAAAAAA", nil, "", otherTokens.AccessToken)

		require.Equal(t, http.StatusNotFound, notOwned.Code)
		require.Equal(t, missing.Code, notOwned.Code)
		require.Equal(t, decodeEnvelope[any](t, missing).Message, decodeEnvelope[any](t, notOwned).Message)
	})

	t.Run("owner delete", func(t *testing.T) {
		rr := doRequest(t, http.MethodDelete, "/api/v1/images/"+image.ID, nil, "", ownerTokens.AccessToken)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		require.JSONEq(t, `{}`, string(mustMarshal(t, decodeEnvelope[map[string]any](t, rr).Data)))

		rr = doRequest(t, http.MethodGet, "/api/v1/images/"+image.ID, nil, "", ownerTokens.AccessToken)
		require.Equal(t, http.StatusNotFound, rr.Code)

		path := strings.TrimPrefix(image.URL, "http://media.test")
		rr = doRequest(t, http.MethodGet, path, nil, "", "")
		require.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestUploadImageHandler_Validation(t *testing.T) {
	user := registerTestUser(t)
	tokens := loginTestUser(t, user.Username)

	t.Run("missing file", func(t *testing.T) {
		body, contentType := multipartBody(t, map[string]string{"description": "nothing"}, "", "", nil)
		rr := doRequest(t, http.MethodPost, "/api/v1/images/upload", body, contentType, tokens.AccessToken)
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("too large", func(t *testing.T) {
		big := append(append([]byte{}, pngContent...), bytes.Repeat([]byte{0}, 2<<20)...)
		body, contentType := multipartBody(t, nil, "image", "big.png", big)
		rr := doRequest(t, http.MethodPost, "/api/v1/images/upload", body, contentType, tokens.AccessToken)
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("empty description is allowed", func(t *testing.T) {
		image := uploadTestImage(t, tokens.AccessToken, "")
		require.Equal(t, "", image.Description)
	})
}

func TestRecentImagesHandler(t *testing.T) {
	user := registerTestUser(t)
	tokens := loginTestUser(t, user.Username)

	var uploaded []*models.Image
	for i := 0; i < 3; i++ {
		uploaded = append(uploaded, uploadTestImage(t, tokens.AccessToken, fmt.Sprintf("recent %d", i)))
	}

	rr := doRequest(t, http.MethodGet, "/api/v1/images/recent?page=1&limit=3", nil, "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	recent := decodeEnvelope[models.RecentImages](t, rr).Data
	require.Len(t, recent.Images, 3)
	for i := range recent.Images {
		require.Equal(t, uploaded[2-i].ID, recent.Images[i].ID)
	}
	require.Equal(t, 1, recent.Pagination.Page)
	require.Equal(t, 3, recent.Pagination.Limit)
	require.False(t, recent.Pagination.HasPrev)

	rr = doRequest(t, http.MethodGet, "/api/v1/images/recent?page=100000&limit=10", nil, "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"images":[]`)
	beyond := decodeEnvelope[models.RecentImages](t, rr).Data
	require.Empty(t, beyond.Images)
	require.False(t, beyond.Pagination.HasNext)

	rr = doRequest(t, http.MethodGet, "/api/v1/images/recent?page=abc&limit=-5", nil, "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	defaults := decodeEnvelope[models.RecentImages](t, rr).Data
	require.Equal(t, 1, defaults.Pagination.Page)
	require.Equal(t, service.DefaultPageSize, defaults.Pagination.Limit)
}

func TestGetProfileHandler(t *testing.T) {
	user := registerTestUser(t)
	tokens := loginTestUser(t, user.Username)
	image := uploadTestImage(t, tokens.AccessToken, "profile shot")

	rr := doRequest(t, http.MethodGet, "/api/v1/users/"+strings.ToUpper(user.Username), nil, "", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NotContains(t, rr.Body.String(), "password")

	profile := decodeEnvelope[models.Profile](t, rr).Data
	require.Equal(t, user.ID, profile.ID)
	require.Len(t, profile.Images, 1)
	require.Equal(t, image.ID, profile.Images[0].ID)

	rr = doRequest(t, http.MethodGet, "/api/v1/users/"+uniqueName("ghost"), nil, "", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestErrorEnvelope(t *testing.T) {
	rr := doRequest(t, http.MethodGet, "/api/v1/users/me", nil, "", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	env := decodeEnvelope[any](t, rr)
	require.False(t, env.Success)
	require.NotNil(t, env.Errors)
	require.Empty(t, env.Errors)
	require.Nil(t, env.Data)
	require.NotEmpty(t, env.Stack, "development responses carry a stack")
}

func TestBodyLimit(t *testing.T) {
	payload := map[string]string{"username": strings.Repeat("a", 20<<10), "password": "x"}
	rr := doJSON(t, http.MethodPost, "/api/v1/users/login", payload, "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHealthCheckHandler(t *testing.T) {
	rr := doRequest(t, http.MethodGet, "/health", nil, "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"ok","database":"ok"}`, rr.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	doRequest(t, http.MethodGet, "/health", nil, "", "")

	rr := doRequest(t, http.MethodGet, "/metrics", nil, "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "picshare_http_requests_total")
}

func TestSwaggerDoc(t *testing.T) {
	rr := doRequest(t, http.MethodGet, "/swagger/doc.json", nil, "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"/images/recent"`)
	require.Contains(t, rr.Body.String(), "picshare API")
}

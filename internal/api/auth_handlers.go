package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"picshare/internal/apperror"
	"picshare/internal/service"
)

type LoginRequest struct {
	Email    string `json:"email" example:"alice@example.com"`
	Username string `json:"username" example:"alice"`
	Password string `json:"password" example:"password123"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
}

func (s *Server) setAuthCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	s.setCookie(w, accessTokenCookie, accessToken, s.config.JWT.AccessTTL)
	s.setCookie(w, refreshTokenCookie, refreshToken, s.config.JWT.RefreshTTL)
}

func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	s.setCookie(w, accessTokenCookie, "", -1)
	s.setCookie(w, refreshTokenCookie, "", -1)
}

func (s *Server) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	if ttl < 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.config.Cookie.Secure,
		SameSite: s.config.Cookie.SameSiteMode(),
	})
}

// @Summary      Log a user in
// @Description  Authenticates by username or email and returns an access token and a refresh token, also set as HttpOnly cookies.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        loginRequest  body      LoginRequest  true  "Login credentials"
// @Success      200  {object}  APIResponse{data=service.LoginResult}
// @Failure      400  {object}  APIError
// @Failure      401  {object}  APIError
// @Failure      404  {object}  APIError
// @Router       /users/login [post]
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) error {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return apperror.Validation("Invalid request body")
	}

	result, err := s.users.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	s.setAuthCookies(w, result.AccessToken, result.RefreshToken)
	return respond(w, http.StatusOK, result, "User logged in successfully")
}

// @Summary      Refresh tokens
// @Description  Exchanges the current refresh token (cookie or body) for a new token pair. The old refresh token stops working.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        refreshTokenRequest  body      RefreshTokenRequest  false  "Refresh token, if not sent as a cookie"
// @Success      200  {object}  APIResponse{data=service.LoginResult}
// @Failure      401  {object}  APIError
// @Router       /users/refresh-token [post]
func (s *Server) RefreshTokenHandler(w http.ResponseWriter, r *http.Request) error {
	refreshToken := ""
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		refreshToken = cookie.Value
	}
	if refreshToken == "" {
		var req RefreshTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return apperror.Validation("Invalid request body")
		}
		refreshToken = req.RefreshToken
	}

	result, err := s.users.RefreshTokens(r.Context(), refreshToken)
	if err != nil {
		return err
	}

	s.setAuthCookies(w, result.AccessToken, result.RefreshToken)
	return respond(w, http.StatusOK, result, "Access token refreshed")
}

// @Summary      Log out
// @Description  Invalidates the stored refresh token and clears the auth cookies.
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  APIResponse
// @Failure      401  {object}  APIError
// @Router       /users/logout [post]
func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) error {
	user := GetUserFromContext(r.Context())

	if err := s.users.Logout(r.Context(), user.ID); err != nil {
		return err
	}

	s.clearAuthCookies(w)
	return respond(w, http.StatusOK, nil, "User logged out")
}

package api

import (
	"net/http"

	"picshare/internal/service"

	"github.com/go-chi/chi/v5"
)

// @Summary      Register a new user
// @Description  Creates an account. The avatar is stored in the media store and its URL saved on the user.
// @Tags         users
// @Accept       multipart/form-data
// @Produce      json
// @Param        fullName  formData  string  true  "Full name"
// @Param        email     formData  string  true  "Email address"
// @Param        username  formData  string  true  "Username"
// @Param        password  formData  string  true  "Password, at least 8 characters"
// @Param        avatar    formData  file    true  "Avatar image"
// @Success      201  {object}  APIResponse{data=models.User}
// @Failure      400  {object}  APIError
// @Failure      409  {object}  APIError
// @Failure      500  {object}  APIError
// @Router       /users/register [post]
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) error {
	if err := parseMultipart(r); err != nil {
		return err
	}
	defer r.MultipartForm.RemoveAll()

	avatar, err := s.stageFormFile(r, "avatar")
	if err != nil {
		return err
	}
	defer avatar.Remove()

	user, err := s.users.Register(r.Context(), service.RegisterInput{
		FullName: r.FormValue("fullName"),
		Email:    r.FormValue("email"),
		Username: r.FormValue("username"),
		Password: r.FormValue("password"),
		Avatar:   avatar,
	})
	if err != nil {
		return err
	}

	return respond(w, http.StatusCreated, user, "User registered successfully")
}

// @Summary      Get current user
// @Description  Returns the authenticated user.
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  APIResponse{data=models.User}
// @Failure      401  {object}  APIError
// @Router       /users/me [get]
func (s *Server) GetCurrentUserHandler(w http.ResponseWriter, r *http.Request) error {
	return respond(w, http.StatusOK, GetUserFromContext(r.Context()), "Current user fetched successfully")
}

// @Summary      Get a user profile
// @Description  Returns a user's public fields and all of their images, newest first.
// @Tags         users
// @Produce      json
// @Param        username  path      string  true  "Username"
// @Success      200  {object}  APIResponse{data=models.Profile}
// @Failure      404  {object}  APIError
// @Router       /users/{username} [get]
func (s *Server) GetProfileHandler(w http.ResponseWriter, r *http.Request) error {
	profile, err := s.users.GetProfile(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		return err
	}

	return respond(w, http.StatusOK, profile, "User profile fetched successfully")
}

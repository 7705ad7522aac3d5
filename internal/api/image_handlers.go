package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// @Summary      Upload an image
// @Description  Stores the image in the media store and records it with an optional description.
// @Tags         images
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        image        formData  file    true   "Image file"
// @Param        description  formData  string  false  "Description"
// @Success      200  {object}  APIResponse{data=models.Image}
// @Failure      400  {object}  APIError
// @Failure      401  {object}  APIError
// @Failure      500  {object}  APIError
// @Router       /images/upload [post]
func (s *Server) UploadImageHandler(w http.ResponseWriter, r *http.Request) error {
	user := GetUserFromContext(r.Context())

	if err := parseMultipart(r); err != nil {
		return err
	}
	defer r.MultipartForm.RemoveAll()

	file, err := s.stageFormFile(r, "image")
	if err != nil {
		return err
	}
	defer file.Remove()

	image, err := s.images.Upload(r.Context(), user.ID, r.FormValue("description"), file)
	if err != nil {
		return err
	}

	return respond(w, http.StatusOK, image, "Image uploaded successfully")
}

// @Summary      Delete an image
// @Description  Deletes one of the caller's images. Images owned by someone else are reported as missing.
// @Tags         images
// @Produce      json
// @Security     BearerAuth
// @Param        imageId  path      string  true  "Image ID"
// @Success      200  {object}  APIResponse
// @Failure      401  {object}  APIError
// @Failure      404  {object}  APIError
// @Failure      500  {object}  APIError
// @Router       /images/{imageId} [delete]
func (s *Server) DeleteImageHandler(w http.ResponseWriter, r *http.Request) error {
	user := GetUserFromContext(r.Context())

	if err := s.images.Delete(r.Context(), chi.URLParam(r, "imageId"), user.ID); err != nil {
		return err
	}

	return respond(w, http.StatusOK, nil, "Image deleted successfully")
}

// @Summary      Get an image
// @Tags         images
// @Produce      json
// @Security     BearerAuth
// @Param        imageId  path      string  true  "Image ID"
// @Success      200  {object}  APIResponse{data=models.Image}
// @Failure      401  {object}  APIError
// @Failure      404  {object}  APIError
// @Router       /images/{imageId} [get]
func (s *Server) GetImageHandler(w http.ResponseWriter, r *http.Request) error {
	image, err := s.images.GetByID(r.Context(), chi.URLParam(r, "imageId"))
	if err != nil {
		return err
	}

	return respond(w, http.StatusOK, image, "Image fetched successfully")
}

// @Summary      List recent images
// @Description  Returns one page of images, newest first. limit defaults to 10 and is capped at 50.
// @Tags         images
// @Produce      json
// @Param        page   query     int  false  "Page number, from 1"
// @Param        limit  query     int  false  "Page size"
// @Success      200  {object}  APIResponse{data=models.RecentImages}
// @Router       /images/recent [get]
func (s *Server) RecentImagesHandler(w http.ResponseWriter, r *http.Request) error {
	// Unparseable values fall through to the service defaults.
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	recent, err := s.images.ListRecent(r.Context(), page, limit)
	if err != nil {
		return err
	}

	return respond(w, http.StatusOK, recent, "Recent images fetched successfully")
}

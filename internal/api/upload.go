package api

import (
	"errors"
	"net/http"

	"picshare/internal/apperror"
	"picshare/internal/storage"
)

const multipartMemory = 32 << 20

func parseMultipart(r *http.Request) error {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperror.Validation("Request body is too large")
		}
		return apperror.Validation("Could not parse multipart form")
	}
	return nil
}

// stageFormFile copies the named file field to the staging directory. A
// missing field yields (nil, nil); the caller owns the returned Upload and
// must Remove it.
func (s *Server) stageFormFile(r *http.Request, field string) (*storage.Upload, error) {
	file, handler, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Validation("Invalid file upload")
	}
	defer file.Close()

	upload, err := s.stager.Stage(file, handler.Filename)
	if errors.Is(err, storage.ErrNotAnImage) {
		return nil, apperror.Validation("Only image files are allowed")
	}
	if err != nil {
		return nil, apperror.Internal("Failed to save the uploaded file", err)
	}
	return upload, nil
}

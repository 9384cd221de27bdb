package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/usecase"
	"github.com/secmon-lab/argus/pkg/utils/safe"
)

var errBadRequest = errors.New("bad request")

// validateHandler accepts a multipart form with the image in field "image"
func (s *Server) validateHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		handleError(w, r, goerr.Wrap(errBadRequest, "failed to parse multipart form", goerr.V("cause", err.Error())))
		return
	}

	input, err := s.parseValidationForm(r)
	if err != nil {
		handleError(w, r, err)
		return
	}

	result, err := s.validation.Validate(r.Context(), *input)
	if err != nil {
		handleError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) parseValidationForm(r *http.Request) (*usecase.ValidationInput, error) {
	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, goerr.Wrap(usecase.ErrEmptyImage, "image field is required", goerr.V("cause", err.Error()))
	}
	defer safe.Close(r.Context(), file)

	image, err := io.ReadAll(file)
	if err != nil {
		return nil, goerr.Wrap(errBadRequest, "failed to read image", goerr.V("cause", err.Error()))
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(image)
	}

	training, err := formBool(r, "training")
	if err != nil {
		return nil, err
	}
	persist, err := formBool(r, "persist")
	if err != nil {
		return nil, err
	}

	return &usecase.ValidationInput{
		Image:         image,
		ContentType:   contentType,
		Category:      r.FormValue("category"),
		ExpectedState: r.FormValue("state"),
		Namespace:     r.FormValue("namespace"),
		Training:      training,
		Prompt:        r.FormValue("prompt"),
		Description:   r.FormValue("description"),
		FolderPath:    r.FormValue("folder_path"),
		Persist:       persist,
	}, nil
}

func formBool(r *http.Request, key string) (bool, error) {
	v := r.FormValue(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, goerr.Wrap(errBadRequest, "invalid boolean field", goerr.V("field", key), goerr.V("value", v))
	}
	return b, nil
}

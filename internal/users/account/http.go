// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"errors"
	"io"
	"net/http"

	"github.com/taibuivan/authkeeper/internal/platform/apperr"
	"github.com/taibuivan/authkeeper/internal/platform/constants"
	"github.com/taibuivan/authkeeper/internal/platform/cookie"
	requestutil "github.com/taibuivan/authkeeper/internal/platform/request"
	"github.com/taibuivan/authkeeper/internal/platform/respond"
	"github.com/taibuivan/authkeeper/internal/platform/validate"
)

// multipartOverhead is the allowance for multipart boundaries and headers on
// top of the photo bytes themselves.
const multipartOverhead = 64 << 10

// # Definitions & Constructors

// Handler implements the profile endpoints of a signed-in account.
//
// Every handler expects a session account in the request context; the session
// guards that put it there are owned by the auth package.
type Handler struct {
	profileService *Service
	cookies        *cookie.Jar
	maxPhotoBytes  int64
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service, cookies *cookie.Jar, maxPhotoBytes int64) *Handler {
	return &Handler{profileService: service, cookies: cookies, maxPhotoBytes: maxPhotoBytes}
}

// # Request Payloads

type updateProfileRequest struct {
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

// sessionAccount returns the account placed in the context by a session guard.
func sessionAccount(request *http.Request) (*Account, error) {
	account := FromContext(request.Context())
	if account == nil {
		return nil, apperr.Unauthorized("Login to gain access")
	}
	return account, nil
}

/*
Session returns the signed-in account.

GET /api/v1/user/session

Response:
  - 200: {status, user} with a signed imageUrl when a photo exists
  - 401: ErrUnauthorized
*/
func (handler *Handler) Session(writer http.ResponseWriter, request *http.Request) {
	account, err := sessionAccount(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.User(writer, handler.profileService.Present(request.Context(), account))
}

/*
UploadPhoto stores a new profile photo.

POST /api/v1/user/profile-photo

Request:
  - Body: multipart/form-data with file field "photo"

Response:
  - 200: {status, data: user}
  - 400: ValidationError (missing file, not an image, too large)
*/
func (handler *Handler) UploadPhoto(writer http.ResponseWriter, request *http.Request) {
	account, err := sessionAccount(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	request.Body = http.MaxBytesReader(writer, request.Body, handler.maxPhotoBytes+multipartOverhead)
	if err := request.ParseMultipartForm(handler.maxPhotoBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respond.Error(writer, request, apperr.ValidationError("Photo is too large."))
			return
		}
		respond.Error(writer, request, validate.RequiredError(constants.PhotoFormField, "Please upload a photo!"))
		return
	}

	file, header, err := request.FormFile(constants.PhotoFormField)
	if err != nil {
		respond.Error(writer, request, validate.RequiredError(constants.PhotoFormField, "Please upload a photo!"))
		return
	}
	defer file.Close()

	// One extra byte lets the service see an oversized body.
	body, err := io.ReadAll(io.LimitReader(file, handler.maxPhotoBytes+1))
	if err != nil {
		respond.Error(writer, request, apperr.Internal(err))
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(body)
	}

	updated, err := handler.profileService.UploadPhoto(request.Context(), account, body, contentType)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, updated)
}

/*
UpdateProfile edits the first and last name.

PATCH /api/v1/user/update-profile

Request:
  - Body: updateProfileRequest (firstname, lastname)

Response:
  - 200: {status, data: {user}}
  - 400: ValidationError
*/
func (handler *Handler) UpdateProfile(writer http.ResponseWriter, request *http.Request) {
	account, err := sessionAccount(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input updateProfileRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	updated, err := handler.profileService.UpdateProfile(request.Context(), account, input.FirstName, input.LastName)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{constants.FieldUser: updated})
}

/*
DeleteAccount permanently removes the signed-in account.

DELETE /api/v1/user/delete-account

Description: Requires a refresh-bound session. Both cookies are cleared.

Response:
  - 204: No Content
  - 401: ErrUnauthorized
*/
func (handler *Handler) DeleteAccount(writer http.ResponseWriter, request *http.Request) {
	account, err := sessionAccount(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.profileService.DeleteAccount(request.Context(), account); err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.cookies.Clear(writer)
	respond.NoContent(writer)
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/authkeeper/internal/platform/cookie"
)

func newHandlerFixture(t *testing.T) (*Handler, *mockObjects, *Account) {
	t.Helper()
	service, _, objects, account := newProfileFixture(t)
	return NewHandler(service, cookie.NewJar(false, time.Hour), 1024), objects, account
}

func withSession(request *http.Request, account *Account) *http.Request {
	return request.WithContext(WithAccount(request.Context(), account))
}

/*
TestHandler_Session verifies the user envelope and the anonymous rejection.
*/
func TestHandler_Session(t *testing.T) {
	handler, _, account := newHandlerFixture(t)

	recorder := httptest.NewRecorder()
	handler.Session(recorder, withSession(httptest.NewRequest(http.MethodGet, "/session", nil), account))

	require.Equal(t, http.StatusOK, recorder.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])
	user := body["user"].(map[string]any)
	assert.Equal(t, account.ID, user["id"])
	assert.NotContains(t, user, "passwordHash")

	recorder = httptest.NewRecorder()
	handler.Session(recorder, httptest.NewRequest(http.MethodGet, "/session", nil))
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

/*
TestHandler_UpdateProfile verifies the {status, data: {user}} shape.
*/
func TestHandler_UpdateProfile(t *testing.T) {
	handler, _, account := newHandlerFixture(t)

	request := httptest.NewRequest(http.MethodPatch, "/update-profile",
		strings.NewReader(`{"firstname":"Grace","lastname":"Hopper"}`))
	recorder := httptest.NewRecorder()
	handler.UpdateProfile(recorder, withSession(request, account))

	require.Equal(t, http.StatusOK, recorder.Code)
	var body struct {
		Status string `json:"status"`
		Data   struct {
			User Account `json:"user"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "Grace", body.Data.User.FirstName)
	assert.Equal(t, "Hopper", body.Data.User.LastName)

	request = httptest.NewRequest(http.MethodPatch, "/update-profile", strings.NewReader(`{"firstname":""}`))
	recorder = httptest.NewRecorder()
	handler.UpdateProfile(recorder, withSession(request, account))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

/*
TestHandler_UploadPhoto verifies multipart parsing of the "photo" field.
*/
func TestHandler_UploadPhoto(t *testing.T) {
	handler, objects, account := newHandlerFixture(t)

	var payload bytes.Buffer
	form := multipart.NewWriter(&payload)
	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition", `form-data; name="photo"; filename="me.png"`)
	partHeader.Set("Content-Type", "image/png")
	part, err := form.CreatePart(partHeader)
	require.NoError(t, err)
	_, _ = part.Write([]byte("png-bytes"))
	require.NoError(t, form.Close())

	objects.On("Put", mock.Anything, mock.AnythingOfType("string"), []byte("png-bytes"), "image/png").Return(nil).Once()
	objects.On("SignedURL", mock.Anything, mock.AnythingOfType("string")).Return("https://signed.example/me", nil).Once()

	request := httptest.NewRequest(http.MethodPost, "/profile-photo", &payload)
	request.Header.Set("Content-Type", form.FormDataContentType())
	recorder := httptest.NewRecorder()
	handler.UploadPhoto(recorder, withSession(request, account))

	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())
	var body struct {
		Data Account `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.NotNil(t, body.Data.ImageURL)
	assert.Equal(t, "https://signed.example/me", *body.Data.ImageURL)
	objects.AssertExpectations(t)
}

/*
TestHandler_UploadPhoto_MissingFile verifies a 400 without the photo field.
*/
func TestHandler_UploadPhoto_MissingFile(t *testing.T) {
	handler, _, account := newHandlerFixture(t)

	var payload bytes.Buffer
	form := multipart.NewWriter(&payload)
	require.NoError(t, form.WriteField("other", "value"))
	require.NoError(t, form.Close())

	request := httptest.NewRequest(http.MethodPost, "/profile-photo", &payload)
	request.Header.Set("Content-Type", form.FormDataContentType())
	recorder := httptest.NewRecorder()
	handler.UploadPhoto(recorder, withSession(request, account))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

/*
TestHandler_DeleteAccount verifies the 204 and cleared cookies.
*/
func TestHandler_DeleteAccount(t *testing.T) {
	handler, _, account := newHandlerFixture(t)

	recorder := httptest.NewRecorder()
	handler.DeleteAccount(recorder, withSession(httptest.NewRequest(http.MethodDelete, "/delete-account", nil), account))

	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Len(t, recorder.Result().Cookies(), 2)
}

// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taibuivan/authkeeper/internal/platform/apperr"
	"github.com/taibuivan/authkeeper/internal/platform/constants"
	"github.com/taibuivan/authkeeper/internal/platform/ctxutil"
	"github.com/taibuivan/authkeeper/internal/platform/sec"
	"github.com/taibuivan/authkeeper/internal/platform/validate"
)

// # Contracts

// ObjectStorage is the capability the profile photo flow needs from a bucket.
type ObjectStorage interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string) (string, error)
}

// Service implements the profile operations of a signed-in account.
type Service struct {
	store         Store
	objects       ObjectStorage
	maxPhotoBytes int64
}

// NewService constructs a profile [Service].
func NewService(store Store, objects ObjectStorage, maxPhotoBytes int64) *Service {
	return &Service{
		store:         store,
		objects:       objects,
		maxPhotoBytes: maxPhotoBytes,
	}
}

// # Presentation

/*
Present attaches a signed photo URL to account when it has a photo.

Description: Signing failures are logged and leave imageUrl empty; the
session itself is still valid without a picture.

Parameters:
  - context: context.Context
  - account: *Account

Returns:
  - *Account: The same pointer, for chaining
*/
func (service *Service) Present(context context.Context, account *Account) *Account {
	if account == nil || account.ImageName == nil || *account.ImageName == "" {
		return account
	}

	url, err := service.objects.SignedURL(context, *account.ImageName)
	if err != nil {
		ctxutil.GetLogger(context).Warn("profile_photo_sign_failed",
			slog.String("account_id", account.ID),
			slog.Any("error", err),
		)
		return account
	}

	account.ImageURL = &url
	return account
}

// # Profile Operations

/*
UploadPhoto replaces the account's profile photo.

Description: Removes the previous object if any, stores the new bytes under a
fresh random key, and persists that key. The key is only persisted while the
stored photo is still the one this request started from; otherwise the new
object is removed again and the call fails with Conflict.

Parameters:
  - context: context.Context
  - account: *Account (session account)
  - body: []byte
  - contentType: string (must be image/*)

Returns:
  - *Account: Updated entity with a signed imageUrl
  - error: ValidationError, Conflict, storage failures
*/
func (service *Service) UploadPhoto(context context.Context, account *Account, body []byte, contentType string) (*Account, error) {
	if len(body) == 0 {
		return nil, validate.RequiredError(constants.PhotoFormField, "Please upload a photo!")
	}
	if int64(len(body)) > service.maxPhotoBytes {
		return nil, apperr.ValidationError("Photo is too large.")
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, apperr.ValidationError("Please upload an image file.")
	}

	if account.ImageName != nil && *account.ImageName != "" {
		if err := service.objects.Delete(context, *account.ImageName); err != nil {
			return nil, fmt.Errorf("profile_service_delete_photo_failed: %w", err)
		}
	}

	key, err := sec.GenerateSecureToken(constants.PhotoKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("profile_service_photo_key_failed: %w", err)
	}

	if err := service.objects.Put(context, key, body, contentType); err != nil {
		return nil, fmt.Errorf("profile_service_put_photo_failed: %w", err)
	}

	// The key write only lands if no concurrent upload replaced the photo first.
	updated, err := service.store.Apply(context, account.ID, NewChanges().SetImage(key).ExpectImage(account.ImageName))
	if err != nil {
		service.discardObject(context, key)
		if errors.Is(err, ErrPrecondition) {
			return nil, apperr.Conflict("Your profile photo was changed by another request. Please try again.")
		}
		return nil, err
	}

	ctxutil.GetLogger(context).Info("profile_photo_updated", slog.String("account_id", account.ID))
	return service.Present(context, updated), nil
}

// discardObject removes an object that never became the account's photo.
func (service *Service) discardObject(context context.Context, key string) {
	if err := service.objects.Delete(context, key); err != nil {
		ctxutil.GetLogger(context).Warn("profile_photo_discard_failed", slog.String("key", key), slog.Any("error", err))
	}
}

/*
UpdateProfile replaces the account's first and last name.

Parameters:
  - context: context.Context
  - account: *Account
  - firstName: string
  - lastName: string

Returns:
  - *Account: Updated entity
  - error: ValidationError when either name is blank
*/
func (service *Service) UpdateProfile(context context.Context, account *Account, firstName, lastName string) (*Account, error) {
	if strings.TrimSpace(firstName) == "" || strings.TrimSpace(lastName) == "" {
		return nil, apperr.ValidationError("Please provide your firstname and lastname!")
	}

	updated, err := service.store.Apply(context, account.ID, NewChanges().SetName(firstName, lastName))
	if err != nil {
		return nil, err
	}

	return service.Present(context, updated), nil
}

/*
DeleteAccount removes the photo object, then the account record.

Description: Irreversible. There is no soft delete.

Parameters:
  - context: context.Context
  - account: *Account

Returns:
  - error: Object storage or persistence failures
*/
func (service *Service) DeleteAccount(context context.Context, account *Account) error {
	if account.ImageName != nil && *account.ImageName != "" {
		if err := service.objects.Delete(context, *account.ImageName); err != nil {
			return fmt.Errorf("profile_service_delete_photo_failed: %w", err)
		}
	}

	if err := service.store.Delete(context, account.ID); err != nil {
		return err
	}

	ctxutil.GetLogger(context).Info("account_deleted", slog.String("account_id", account.ID))
	return nil
}

// Package services defines the business logic for moderation decisions,
// alert notifications, and analytics. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Submission validation errors. All of them are raised before any provider
// call is made and map to client errors at the HTTP layer.
var (
	// ErrEmptyText is returned when a text submission contains no characters.
	ErrEmptyText = errors.New("text is empty")

	// ErrTextTooLong is returned when a text submission exceeds the
	// maximum configured length limit.
	ErrTextTooLong = errors.New("text too long")

	// ErrUnsupportedImageType is returned when an uploaded image declares a
	// content type other than image/jpeg or image/png.
	ErrUnsupportedImageType = errors.New("unsupported file type")

	// ErrImageTooLarge is returned when an uploaded image exceeds the
	// configured size limit.
	ErrImageTooLarge = errors.New("file too large")
)

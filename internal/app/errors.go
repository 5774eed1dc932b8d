package app

import "errors"

var (
	// ErrProductNotFound indicates no product row has the given id.
	ErrProductNotFound = errors.New("product not found")
	// ErrSheetNotFound indicates the sheets bucket has no such file.
	ErrSheetNotFound = errors.New("sheet not found")
	// ErrInvalidInput wraps validation failures; the message carries the detail.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupportedFileType rejects uploads outside the allowed types.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrFileTooLarge rejects uploads above the configured size.
	ErrFileTooLarge = errors.New("file too large")
)

package workbook

import "errors"

var (
	// ErrTransport reports that the workbook bytes could not be retrieved.
	ErrTransport = errors.New("workbook: transport failure")
	// ErrFormat reports bytes that are not a readable workbook.
	ErrFormat = errors.New("workbook: invalid format")
)

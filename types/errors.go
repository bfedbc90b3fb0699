package types

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrEmptyQuestion      = errors.New("question is empty")
	ErrEmptyResponse      = errors.New("language model returned an empty response")
)

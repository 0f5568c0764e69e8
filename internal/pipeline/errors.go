package pipeline

import (
	"errors"

	"github.com/kosarica/catalog-ingest/internal/parsers/xml"
)

var (
	// ErrFetchFailed wraps any failure to retrieve the raw payload
	ErrFetchFailed = errors.New("fetch failed")

	// ErrMalformedDocument is returned when the payload cannot be parsed; nothing is written
	ErrMalformedDocument = xml.ErrMalformedDocument

	// ErrCommitFailed wraps a rejected batch commit. Batches committed before it stand.
	ErrCommitFailed = errors.New("commit failed")

	// ErrMissingURL is returned by the URL surface when no url was supplied
	ErrMissingURL = errors.New("missing url")

	// ErrIgnoredObject is returned for storage events outside the prices/ prefix or not ending in .xml
	ErrIgnoredObject = errors.New("object ignored")
)

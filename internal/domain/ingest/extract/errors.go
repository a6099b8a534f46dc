package extract

import (
	"errors"
	"fmt"
)

var ErrUnsupportedMediaType = errors.New("unsupported media type")

// ExtractionError reports a document the engine could not read.
type ExtractionError struct {
	Method string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed (%s): %v", e.Method, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

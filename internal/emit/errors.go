package emit

import "errors"

// Error classes for the pipeline. Call sites wrap these with fmt.Errorf("...: %w", ...)
// so callers can branch with errors.Is.
var (
	// ErrConfiguration covers mutually exclusive load options, e.g. asking to
	// orthorectify a chunked scene.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation covers rejected inputs, e.g. quality flag indices that
	// select the reserved data bands.
	ErrValidation = errors.New("validation error")

	// ErrDataIntegrity covers malformed granule contents, e.g. variables whose
	// spatial dimensions disagree.
	ErrDataIntegrity = errors.New("data integrity error")

	// ErrState covers requests that contradict what has already been done to a
	// scene, e.g. exporting a sensor-space GLT for an orthorectified scene.
	ErrState = errors.New("state error")
)

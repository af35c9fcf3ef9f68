package pe

import "errors"

// Sentinel error kinds. Use errors.Is to classify a *LoadError.
var (
	// ErrInvalidImage reports a buffer that is not a PE file at all.
	ErrInvalidImage = errors.New("invalid image")

	// ErrUnsupportedImage reports a valid PE file that is not x86-64 PE32+.
	ErrUnsupportedImage = errors.New("unsupported image")

	// ErrMalformedImportDirectory is recorded on Image.ImportErr when the
	// import walk hits an untranslatable RVA. The image is still usable.
	ErrMalformedImportDirectory = errors.New("malformed import directory")

	// ErrTruncated reports a read past the end of the buffer.
	ErrTruncated = errors.New("read past end of buffer")
)

// LoadError describes why an image could not be loaded.
type LoadError struct {
	Kind   error
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	msg := "pe: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the error kind sentinel.
func (e *LoadError) Is(target error) bool {
	return e.Kind == target
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func invalid(reason string, err error) error {
	return &LoadError{Kind: ErrInvalidImage, Reason: reason, Err: err}
}

func unsupported(reason string) error {
	return &LoadError{Kind: ErrUnsupportedImage, Reason: reason}
}

func malformedImports(reason string) error {
	return &LoadError{Kind: ErrMalformedImportDirectory, Reason: reason}
}

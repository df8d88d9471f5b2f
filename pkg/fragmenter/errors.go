package fragmenter

import "errors"

var (
	ErrUnsupportedCast        = errors.New("colstore: unsupported cast")
	ErrDataConversionOverflow = errors.New("colstore: data conversion overflow")
	ErrDictionaryMissing      = errors.New("colstore: dictionary missing")
	ErrInvalidValue           = errors.New("colstore: invalid value")
	ErrJournalMisuse          = errors.New("colstore: journal misuse")
)

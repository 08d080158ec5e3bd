package knowledge

import "errors"

var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotFound           = errors.New("knowledge file not found")
	ErrOpen               = errors.New("knowledge file cannot be opened")
	ErrFormatTooOld       = errors.New("knowledge format too old")
	ErrGeometry           = errors.New("knowledge neuron size incompatible")
	ErrCapacityExceeded   = errors.New("knowledge exceeds neuron capacity")
	ErrReplace            = errors.New("existing knowledge file cannot be replaced")
	ErrTruncated          = errors.New("knowledge file truncated")
	ErrCorrupt            = errors.New("knowledge file corrupt")
	ErrBus                = errors.New("neuron bus failure")
)

// Numeric codes reported by Code, compatible with the firmware's return values.
const (
	CodeOK                 = 0
	CodeStorageUnavailable = 1
	CodeNotFound           = 2
	CodeOpen               = 3
	CodeFormatTooOld       = 4
	CodeGeometry           = 5
	CodeCapacityExceeded   = 6
	CodeReplace            = 7
	CodeTruncated          = 8
	CodeBus                = 9
	CodeUnknown            = 255
)

var errorCodes = []struct {
	err  error
	code int
}{
	{ErrStorageUnavailable, CodeStorageUnavailable},
	{ErrNotFound, CodeNotFound},
	{ErrOpen, CodeOpen},
	{ErrFormatTooOld, CodeFormatTooOld},
	{ErrGeometry, CodeGeometry},
	{ErrCapacityExceeded, CodeCapacityExceeded},
	{ErrReplace, CodeReplace},
	{ErrTruncated, CodeTruncated},
	{ErrCorrupt, CodeTruncated},
	{ErrBus, CodeBus},
}

// Code maps an error returned by Save or Load to its numeric code.
func Code(err error) int {
	if err == nil {
		return CodeOK
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}

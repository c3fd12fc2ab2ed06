package index

import "errors"

// ErrCorrupt means the persisted record set could not be decoded.
var ErrCorrupt = errors.New("index storage corrupt")

package memory

import "errors"

// ErrHeaderMalformed is returned (optionally wrapped) when a ROM image fails
// header validation: too short, or declaring an MBC type this core doesn't
// recognize.
var ErrHeaderMalformed = errors.New("cartridge: malformed header")

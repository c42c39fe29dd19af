package cart

import "errors"

// Sentinel errors surfaced by cartridge construction and RAM persistence.
// Callers should use errors.Is against these, not string matching.
var (
	ErrInvalidROM           = errors.New("cart: invalid rom image")
	ErrUnsupportedCartridge = errors.New("cart: unsupported cartridge type")
	ErrInvalidSave          = errors.New("cart: invalid save image")
)

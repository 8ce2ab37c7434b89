package settlement

import "errors"

// ErrUnknownProduct is returned when a purchase references a product
// identifier absent from the catalog. The purchase stays unprocessed so
// a catalog update can settle it later.
var ErrUnknownProduct = errors.New("vidscribe: unknown product")

//go:build !linux

package socketcan

import "errors"

// ErrTxOverflow keeps the sentinel available on non-linux builds so the
// server's overflow classification compiles everywhere.
var ErrTxOverflow = errors.New("socketcan tx overflow (stub)")

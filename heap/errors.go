// SPDX-License-Identifier: Unlicense OR MIT

package heap

import "errors"

var (
	// ErrOverflow is returned by Calloc when num*sz would overflow.
	ErrOverflow = errors.New("heap: allocation size overflow")
	// ErrTooManyAllocations is returned by Info when the number of
	// live allocations exceeds the fixed reporting buffer size.
	ErrTooManyAllocations = errors.New("heap: too many live allocations to report")
)

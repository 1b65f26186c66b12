package metadata

import "github.com/pkg/errors"

// ErrIncomplete is returned (wrapped) by Resolver.Process when a block
// needs the trace's default byte order or clock list before it can be
// fully resolved, but no trace block has been visited yet. The caller
// feeds the resolver more TSDL packets and retries (the incremental
// 4): this is not a permanent failure.
var ErrIncomplete = errors.New("metadata: incomplete metadata, trace block not yet seen")

// ErrValidation is wrapped into every structural validation failure
// case): duplicate labels, bad major/minor, oversized
// integers, non-power-of-two alignment, and so on.
var ErrValidation = errors.New("metadata: validation failed")

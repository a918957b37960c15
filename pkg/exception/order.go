package exception

import "errors"

// Validation errors. Orders failing these are rejected before dispatch and
// never reach a venue.
var (
	ErrOrderMissingID           = errors.New("order: missing id")
	ErrOrderUnknownOperation    = errors.New("order: unknown operation")
	ErrOrderUnknownTier         = errors.New("order: unknown execution tier")
	ErrOrderMissingVenue        = errors.New("order: missing venue")
	ErrOrderNegativeAmount      = errors.New("order: negative amount")
	ErrOrderAtomicWithoutGroup  = errors.New("order: atomic order without group id")
	ErrOrderSequentialWithGroup = errors.New("order: sequential order carries group id")
	ErrOrderUnknownVenue        = errors.New("order: venue has no adapter")
	ErrOrderGroupCrossContext   = errors.New("order: atomic group spans execution contexts")
	ErrOrderGroupOnCEX          = errors.New("order: atomic group targets a cex venue")
)

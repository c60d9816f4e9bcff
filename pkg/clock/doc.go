// Package clock provides the router's time source.
//
// Subscription expiries are absolute timestamps in milliseconds (types.Time).
// Stamp converts a Clock reading into that form. Real() follows the system
// clock; Fake() stands still until advanced, which lets timeout sweeps be
// tested without sleeping.
package clock

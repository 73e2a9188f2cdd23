//go:build !highlightdebug

package positionset

const debugChecks = false

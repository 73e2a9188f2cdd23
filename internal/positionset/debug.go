//go:build highlightdebug

package positionset

const debugChecks = true

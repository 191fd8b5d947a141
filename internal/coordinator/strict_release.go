//go:build !debug

package coordinator

const strictDefault = false

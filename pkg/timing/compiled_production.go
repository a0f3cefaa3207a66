//go:build production

package timing

// Compiled reports whether timing support is built in.
const Compiled = false

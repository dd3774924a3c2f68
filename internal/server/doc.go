// Package server hosts the read-only mirror started by `any-cli serve`. It
// exposes the local command cache as an npm-compatible registry over Fiber so
// other machines, or offline runs, can point RegistryURL at it. Misses can be
// forwarded to an upstream registry; everything else is answered from disk.
package server

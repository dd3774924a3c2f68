// Package cache owns the on-disk store of installed command packages.
//
// Each (name, version) pair lives in its own directory under the store root,
// named by Key. Entries are created by staging an install in a temporary
// sibling directory and renaming it into place, so a visible entry is always
// complete. Entries are never modified or deleted once published; an update
// that resolves a newer version adds a new entry next to the old one.
package cache

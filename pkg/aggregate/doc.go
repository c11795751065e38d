// Package aggregate declares composite operations over included builds.
// A composite does no work of its own: it succeeds only if the same-named
// operation of every build it references succeeds.
// Resolution happens before anything runs so a bad reference never leaves
// a half-executed composite behind.
package aggregate

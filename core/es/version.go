package es

import "log/slog"

// Version is the position of an event within its aggregate's history.
// The first recorded event carries version 1, a fresh aggregate is at 0.
type Version uint64

func (v Version) Uint64() uint64                         { return uint64(v) }
func (v Version) Next() Version                          { return v + 1 }
func (v Version) SlogAttr() slog.Attr                    { return newSlogVersionAttr("version", v) }
func (v Version) SlogAttrWithKey(key string) slog.Attr   { return newSlogVersionAttr(key, v) }
func newSlogVersionAttr(key string, v Version) slog.Attr { return slog.Uint64(key, uint64(v)) }

// versionFrom reads a version out of a decoded metadata value.
func versionFrom(v any) (Version, bool) {
	u, ok := toUint64(v)
	if !ok {
		return 0, false
	}
	return Version(u), true
}

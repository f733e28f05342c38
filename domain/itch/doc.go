// Package itch decodes and encodes NASDAQ TotalView ITCH messages for
// protocol versions 4.1 and 5.0.
//
// Every (version, type tag) pair has an explicit fixed layout in the
// layout table. Decode reads one message from a byte slice, Encode writes
// one back, and Stream walks a whole capture applying the per-version
// framing (length prefixed for 5.0, contiguous for 4.1) and resolving 4.1
// timestamps against the most recent seconds message.
package itch

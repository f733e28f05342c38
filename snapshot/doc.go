// Package snapshot checkpoints the resting orders of an engine with gob
// and rebuilds an engine from such a checkpoint. Orders are stored in
// book order (ticker, side, price best first, queue position), so loading
// reproduces queue priority as well as aggregates.
package snapshot

// Package memory provides a typed object pool. The order book engine
// allocates resting orders from it so that a day of adds and deletes
// recycles a bounded working set instead of churning the heap.
package memory

// Package service drives replays. A Replayer decodes one capture file,
// applies order messages to its engine and writes records to a sink until
// the input ends or a fatal error occurs. Batch runs independent
// replays over several files with a bounded number of workers.
package service

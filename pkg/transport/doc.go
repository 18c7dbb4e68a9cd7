// Package transport frames CBOR messages over a byte stream.
//
// Each message is a 4-byte big-endian length followed by the CBOR payload:
//
//	┌──────────────┬──────────────────────┐
//	│ length (4B)  │ CBOR payload          │
//	└──────────────┴──────────────────────┘
//
// The instance guard uses it to hand command-line arguments from a second
// process to the running one over a loopback connection.
package transport

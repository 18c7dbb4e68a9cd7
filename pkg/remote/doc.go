// Package remote talks to the host application plugin over two loopback TCP
// connections.
//
// Out carries mapped device input to the host as text lines. In carries host
// value changes and control commands back. Both reconnect on their own until
// stopped. Every line is
//
//	COMMAND VALUE\n
//
// where VALUE is optional and may contain spaces.
package remote

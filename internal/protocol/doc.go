// Package protocol owns the datagram wire format the UDP transport uses to
// carry transmissions between simulated modems.
//
// Layout:
// - frame: fixed header with addressing, sequence and payload length
// - tlv: typed descriptor fields inside the payload
// - datagram.go: mapping between transmissions and datagrams
package protocol

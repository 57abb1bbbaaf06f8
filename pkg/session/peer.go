package session

import "net"

// SendFunc transmits one encoded frame to a peer's socket. It must be safe to
// call from the dispatch worker only; connection handlers never call it.
type SendFunc func(frame []byte) error

// Peer is the dispatch worker's record of one registered connection. Peers
// are identified by ID alone: the registry is keyed by ID, and Addr is never
// compared, so two connections from the same address are distinct peers.
type Peer struct {
	ID          int
	Name        string
	Hostname    string
	Port        int
	Addr        net.Addr
	CursorIndex int
	Acked       bool
	Send        SendFunc
}

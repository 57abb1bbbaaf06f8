// Package protocol defines the wire protocol between a peer editor and the server:
// message kinds, their JSON shape, the peer-tag alphabet, and the length-prefixed
// framing used to send them over a duplex byte stream.
package protocol

import "troopd/pkg/ot"

// Message is the single wire envelope for every peer<->server message. Only the
// fields relevant to Type are populated; the rest are left at their zero value and
// dropped from the JSON encoding by their omitempty tags.
type Message struct {
	Type  int `json:"type"`
	SrcID int `json:"src_id"`
	Reply int `json:"reply,omitempty"` // 1 => echo back to the author; absent/0 => don't

	// AUTH (the first frame on a new connection; not itself Type-tagged).
	// Password carries the hex-encoded digest of the shared secret, not the
	// plaintext password itself — the server never receives the plaintext.
	Password string `json:"password,omitempty"`

	// CONNECT
	Name     string `json:"name,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	Port     int    `json:"port,omitempty"`

	// OPERATION
	Revision  int              `json:"revision,omitempty"`
	Operation *ot.OperationSeq `json:"operation,omitempty"`

	// SET_ALL / RESET
	Document string      `json:"document,omitempty"`
	Ranges   [][2]int    `json:"ranges,omitempty"`
	Locs     map[int]int `json:"locs,omitempty"`

	// REMOVE
	ClientID int `json:"client_id,omitempty"`

	// RESPONSE / KILL
	String string `json:"string,omitempty"`
}

// NewConnect builds a CONNECT message announcing a peer.
func NewConnect(srcID int, name, hostname string, port int) *Message {
	return &Message{Type: Connect, SrcID: srcID, Name: name, Hostname: hostname, Port: port}
}

// NewConnectAck builds a CONNECT_ACK message.
func NewConnectAck(srcID int) *Message {
	return &Message{Type: ConnectAck, SrcID: srcID}
}

// NewRequestAck builds a REQUEST_ACK message from the server.
func NewRequestAck() *Message {
	return &Message{Type: RequestAck, SrcID: ServerID}
}

// NewOperation builds an OPERATION message.
func NewOperation(srcID, revision int, op *ot.OperationSeq, reply bool) *Message {
	m := &Message{Type: Operation, SrcID: srcID, Revision: revision, Operation: op}
	if reply {
		m.Reply = 1
	}
	return m
}

// NewSetAll builds a SET_ALL message carrying the full document baseline.
func NewSetAll(document string, ranges [][2]int, locs map[int]int) *Message {
	return &Message{Type: SetAll, SrcID: ServerID, Document: document, Ranges: ranges, Locs: locs}
}

// NewReset builds a RESET message; identical payload shape to SET_ALL.
func NewReset(document string, ranges [][2]int, locs map[int]int) *Message {
	return &Message{Type: Reset, SrcID: ServerID, Document: document, Ranges: ranges, Locs: locs}
}

// NewRemove builds a REMOVE message announcing a peer's departure.
func NewRemove(clientID int) *Message {
	return &Message{Type: Remove, SrcID: ServerID, ClientID: clientID}
}

// NewResponse builds a RESPONSE message, the server-notice broadcast channel.
func NewResponse(text string) *Message {
	return &Message{Type: Response, SrcID: ServerID, String: text}
}

// NewKill builds a KILL message sent to every peer before shutdown.
func NewKill(text string) *Message {
	return &Message{Type: Kill, SrcID: ServerID, String: text}
}

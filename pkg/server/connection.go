package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"troopd/internal/protocol"
	"troopd/pkg/logger"
	"troopd/pkg/session"
)

// connState is the per-connection state machine's current state.
type connState int

const (
	stateNew connState = iota
	stateAuth
	stateLive
	stateClosed
)

// connection drives one peer's socket: the NEW -> AUTH -> LIVE -> CLOSED
// lifecycle (§4.5). It never touches the document, log, annotation, or
// registry directly; it only parses frames and enqueues them on the
// dispatch worker's queue.
type connection struct {
	conn    net.Conn
	dispatch *Dispatcher
	secret  *Secret
	limiter *rate.Limiter

	reader protocol.Reader
	state  connState

	sendMu sync.Mutex
	peer   *session.Peer
}

func newConnection(conn net.Conn, dispatch *Dispatcher, secret *Secret, limiter *rate.Limiter) *connection {
	return &connection{
		conn:     conn,
		dispatch: dispatch,
		secret:   secret,
		limiter:  limiter,
		state:    stateNew,
	}
}

// serve runs the connection to completion: authenticate, then relay frames
// until the socket closes or ctx is cancelled.
func (c *connection) serve(ctx context.Context) {
	defer c.conn.Close()

	msg, err := c.readOne(ctx)
	if err != nil {
		logger.Debug("connection %s: auth read failed: %v", c.conn.RemoteAddr(), err)
		return
	}

	c.state = stateAuth
	id, err := c.authenticate(ctx, msg.Password)
	if err != nil {
		logger.Debug("connection %s: %v", c.conn.RemoteAddr(), err)
		return
	}
	if id < 0 {
		return // reply already sent by authenticate; connection is done
	}

	c.peer = &session.Peer{
		ID:   id,
		Addr: c.conn.RemoteAddr(),
		Send: c.sendFrame,
	}
	c.state = stateLive
	logger.Info("connection %s: authenticated as peer %d", c.conn.RemoteAddr(), id)

	c.liveLoop(ctx)

	c.state = stateClosed
	c.dispatch.Enqueue(Inbound{Peer: c.peer, Disconnect: true})
	logger.Info("connection %s: disconnected (peer %d)", c.conn.RemoteAddr(), id)
}

// authenticate checks the AUTH frame's hex-encoded digest, allocates or
// denies an id, and sends the 4-character reply. A negative return means the
// caller should stop — the reply is already on the wire and the socket will
// be closed by serve's deferred Close.
func (c *connection) authenticate(ctx context.Context, digest string) (int, error) {
	if !c.secret.Verify(digest) {
		c.conn.Write(protocol.EncodeAuthReply(protocol.AuthFailedID))
		return protocol.AuthFailedID, errors.New("authentication failed")
	}

	id, err := c.dispatch.RequestID(ctx)
	if err != nil {
		return 0, err
	}
	if id == protocol.RegistryFullID {
		c.conn.Write(protocol.EncodeAuthReply(protocol.RegistryFullID))
		return protocol.RegistryFullID, errors.New("registry full")
	}

	if _, err := c.conn.Write(protocol.EncodeAuthReply(id)); err != nil {
		return 0, err
	}
	return id, nil
}

// liveLoop reads frames until the socket errs or returns empty, pacing reads
// through the connection's rate limiter and enqueueing every decoded message
// (including CONNECT, which the dispatch worker treats as a join request).
func (c *connection) liveLoop(ctx context.Context) {
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return
		}

		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		n, err := c.conn.Read(buf)
		if n > 0 {
			if lerr := c.limiter.WaitN(ctx, n); lerr != nil {
				return
			}
			msgs, ferr := c.reader.Feed(buf[:n])
			for _, m := range msgs {
				m.SrcID = c.peer.ID // never trust a client-supplied src_id
				c.dispatch.Enqueue(Inbound{Peer: c.peer, Msg: m})
			}
			if ferr != nil {
				logger.Debug("connection %s: %v", c.conn.RemoteAddr(), ferr)
				return
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		if n == 0 {
			return
		}
	}
}

// readOne blocks for exactly one decoded frame, used only for the AUTH step
// before the connection has a Peer to attach to queued items.
func (c *connection) readOne(ctx context.Context) (*protocol.Message, error) {
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		n, err := c.conn.Read(buf)
		if n > 0 {
			msgs, ferr := c.reader.Feed(buf[:n])
			if len(msgs) > 0 {
				return msgs[0], nil
			}
			if ferr != nil {
				return nil, ferr
			}
		}
		if err != nil {
			return nil, err
		}
	}
}

// sendFrame writes a pre-encoded frame to this connection's socket. Called
// only by the dispatch worker.
func (c *connection) sendFrame(frame []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return protocol.WriteFrameBytes(c.conn, frame)
}

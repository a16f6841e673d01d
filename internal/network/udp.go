package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/g960059/showrunner/internal/model"
)

const writeTimeout = 250 * time.Millisecond

// Broadcaster sends item ids to the other nodes over UDP. Sends are fire and
// forget; a failed send is returned but never retried.
type Broadcaster struct {
	conn   net.PacketConn
	target net.Addr
	origin uint32
	log    *slog.Logger
}

func NewBroadcaster(target string, origin uint32, log *slog.Logger) (*Broadcaster, error) {
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("resolve broadcast address %q: %w", target, err)
	}
	conn, err := net.ListenPacket("udp", ":0")
	if err != nil {
		return nil, fmt.Errorf("open broadcast socket: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{conn: conn, target: addr, origin: origin, log: log}, nil
}

func (b *Broadcaster) Broadcast(id model.ItemID, payload *uint32) error {
	buf, err := Datagram{Origin: b.origin, Item: id, Payload: payload}.MarshalBinary()
	if err != nil {
		return err
	}
	if err := b.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := b.conn.WriteTo(buf, b.target); err != nil {
		return fmt.Errorf("broadcast item %d: %w", id, err)
	}
	b.log.Debug("broadcast sent", "item_id", id, "target", b.target.String())
	return nil
}

func (b *Broadcaster) Close() error {
	return b.conn.Close()
}

// Listener receives datagrams from the other nodes and drops the ones this
// node sent itself.
type Listener struct {
	conn   net.PacketConn
	origin uint32
	log    *slog.Logger
}

// Listen binds addr. A multicast group address joins the group on every
// interface.
func Listen(addr string, origin uint32, log *slog.Logger) (*Listener, error) {
	if log == nil {
		log = slog.Default()
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve listen address %q: %w", addr, err)
	}
	var conn net.PacketConn
	if udpAddr.IP != nil && udpAddr.IP.IsMulticast() {
		conn, err = net.ListenMulticastUDP("udp", nil, udpAddr)
	} else {
		conn, err = net.ListenUDP("udp", udpAddr)
	}
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Listener{conn: conn, origin: origin, log: log}, nil
}

func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Serve reads datagrams until ctx is done or the listener is closed. Malformed
// datagrams are logged and skipped.
func (l *Listener) Serve(ctx context.Context, handle func(Datagram)) error {
	go func() {
		<-ctx.Done()
		_ = l.conn.Close()
	}()
	buf := make([]byte, 512)
	for {
		n, from, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read datagram: %w", err)
		}
		var d Datagram
		if err := d.UnmarshalBinary(buf[:n]); err != nil {
			l.log.Warn("dropping datagram", "from", from.String(), "err", err)
			continue
		}
		if d.Origin == l.origin {
			continue
		}
		handle(d)
	}
}

func (l *Listener) Close() error {
	return l.conn.Close()
}

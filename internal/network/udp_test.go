package network

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/g960059/showrunner/internal/model"
)

func TestDatagramRoundTrip(t *testing.T) {
	payload := uint32(0xDEADBEEF)
	in := Datagram{Origin: 7, Item: 4242, Payload: &payload}
	buf, err := in.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(buf) != DatagramSize {
		t.Fatalf("expected %d bytes, got %d", DatagramSize, len(buf))
	}
	if buf[3] != 7 || buf[8] != 1 {
		t.Fatalf("unexpected layout % x", buf)
	}
	var out Datagram
	if err := out.UnmarshalBinary(buf); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Origin != 7 || out.Item != 4242 || out.Payload == nil || *out.Payload != payload {
		t.Fatalf("unexpected datagram %+v", out)
	}

	buf, _ = Datagram{Origin: 1, Item: model.AllStopID}.MarshalBinary()
	if err := out.UnmarshalBinary(buf); err != nil {
		t.Fatalf("unmarshal without payload: %v", err)
	}
	if out.Payload != nil || out.Item != model.AllStopID {
		t.Fatalf("unexpected datagram %+v", out)
	}
}

func TestDatagramRejectsMalformed(t *testing.T) {
	var d Datagram
	if err := d.UnmarshalBinary([]byte{1, 2, 3}); !errors.Is(err, ErrMalformedDatagram) {
		t.Fatalf("expected ErrMalformedDatagram for short input, got %v", err)
	}
	buf, _ := Datagram{Origin: 1, Item: 2}.MarshalBinary()
	buf[8] = 9
	if err := d.UnmarshalBinary(buf); !errors.Is(err, ErrMalformedDatagram) {
		t.Fatalf("expected ErrMalformedDatagram for bad flag, got %v", err)
	}
}

func TestListenerDropsOwnOrigin(t *testing.T) {
	listener, err := Listen("127.0.0.1:0", 2, nil)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Datagram, 4)
	done := make(chan error, 1)
	go func() {
		done <- listener.Serve(ctx, func(d Datagram) { got <- d })
	}()

	self, err := NewBroadcaster(listener.Addr().String(), 2, nil)
	if err != nil {
		t.Fatalf("new broadcaster: %v", err)
	}
	defer self.Close() //nolint:errcheck
	peer, err := NewBroadcaster(listener.Addr().String(), 9, nil)
	if err != nil {
		t.Fatalf("new broadcaster: %v", err)
	}
	defer peer.Close() //nolint:errcheck

	if err := self.Broadcast(10, nil); err != nil {
		t.Fatalf("self broadcast: %v", err)
	}
	payload := uint32(3)
	if err := peer.Broadcast(11, &payload); err != nil {
		t.Fatalf("peer broadcast: %v", err)
	}

	select {
	case d := <-got:
		if d.Origin != 9 || d.Item != 11 || d.Payload == nil || *d.Payload != 3 {
			t.Fatalf("unexpected datagram %+v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for peer datagram")
	}
	select {
	case d := <-got:
		t.Fatalf("own datagram should be dropped, got %+v", d)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not stop")
	}
}

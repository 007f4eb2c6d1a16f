package eventq

import (
	"testing"
	"time"
)

func TestOffer(t *testing.T) {
	ch := make(chan int, 1)
	if !Offer(ch, 1) {
		t.Fatal("Offer into empty channel = false, want true")
	}
	if Offer(ch, 2) {
		t.Fatal("Offer into full channel = true, want false")
	}
	if got := <-ch; got != 1 {
		t.Fatalf("received %d, want 1", got)
	}
}

func TestOfferClosedChannel(t *testing.T) {
	ch := make(chan int, 1)
	close(ch)
	if Offer(ch, 1) {
		t.Fatal("Offer into closed channel = true, want false")
	}
}

func TestBridgeOrderAndClose(t *testing.T) {
	src := make(chan any, 4)
	dst := make(chan any, 4)
	var seen []any
	done := Bridge(src, dst, func(ev any) { seen = append(seen, ev) })

	src <- "a"
	src <- "b"
	close(src)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not finish after src closed")
	}

	if len(seen) != 2 || seen[0] != "a" || seen[1] != "b" {
		t.Fatalf("observer saw %v, want [a b]", seen)
	}
	var got []any
	for ev := range dst {
		got = append(got, ev)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("dst received %v, want [a b]", got)
	}
}

func TestBridgeNilDstAndObserver(t *testing.T) {
	src := make(chan any, 2)
	var n int
	done := Bridge(src, nil, nil, func(any) { n++ })

	src <- 1
	src <- 2
	close(src)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not finish after src closed")
	}
	if n != 2 {
		t.Fatalf("observer calls = %d, want 2", n)
	}
}

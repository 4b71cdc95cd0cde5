package requestcache

import (
	"testing"
	"time"

	"github.com/anydex/anydex/pkg/util"
)

func TestAddAndPopCancelsTimeout(t *testing.T) {
	c := New(util.RealClock{})
	key := Key{Kind: "ping", Number: c.NextNumber()}

	fired := make(chan struct{}, 1)
	if !c.Add(key, "hello", time.Hour, func(Key, any) { fired <- struct{}{} }) {
		t.Fatal("Add should succeed for a fresh key")
	}
	if !c.Has(key) {
		t.Fatal("expected key to be present")
	}

	val, ok := c.Pop(key)
	if !ok || val != "hello" {
		t.Fatalf("Pop returned (%v, %v), want (hello, true)", val, ok)
	}
	if c.Has(key) {
		t.Fatal("expected key to be gone after Pop")
	}
	select {
	case <-fired:
		t.Fatal("timeout should not fire after Pop")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestTimeoutFiresWhenNotPopped(t *testing.T) {
	c := New(util.RealClock{})
	key := Key{Kind: "sync", Number: c.NextNumber()}
	fired := make(chan any, 1)
	c.Add(key, 42, 10*time.Millisecond, func(_ Key, v any) { fired <- v })

	select {
	case v := <-fired:
		if v != 42 {
			t.Fatalf("onTimeout value = %v, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout never fired")
	}
	if c.Has(key) {
		t.Fatal("entry should be removed once its timeout fires")
	}
}

func TestAddRejectsDuplicateKey(t *testing.T) {
	c := New(util.RealClock{})
	key := Key{Kind: "ping", Number: 1}
	if !c.Add(key, 1, time.Hour, nil) {
		t.Fatal("first Add should succeed")
	}
	if c.Add(key, 2, time.Hour, nil) {
		t.Fatal("second Add with the same key should fail")
	}
	c.Clear()
}

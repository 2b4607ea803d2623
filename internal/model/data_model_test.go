package model

import "testing"

type stubClock struct {
	now uint64
}

func (s stubClock) UnixNow() uint64 { return s.now }

func TestEntryTombstone(t *testing.T) {
	if (Entry{Value: []byte{}}).Tombstone() {
		t.Fatal("empty value is not a tombstone")
	}
	if !(Entry{Value: nil, Version: 3}).Tombstone() {
		t.Fatal("nil value is a tombstone")
	}
}

func TestEntryExpired(t *testing.T) {
	clock := stubClock{now: 100}

	if (Entry{Value: []byte("v")}).Expired(clock) {
		t.Fatal("no expiry set, must not expire")
	}
	if (Entry{Value: []byte("v"), ExpiresAt: 101}).Expired(clock) {
		t.Fatal("expiry in the future")
	}
	if !(Entry{Value: []byte("v"), ExpiresAt: 100}).Expired(clock) {
		t.Fatal("expiry boundary is inclusive")
	}
}

func TestOpTypeValidity(t *testing.T) {
	if !OpPut.Valid() || !OpDelete.Valid() {
		t.Fatal("known ops must be valid")
	}
	if OpType(7).Valid() {
		t.Fatal("unknown op must be invalid")
	}
	if OpPut.String() != "put" || OpDelete.String() != "delete" {
		t.Fatalf("op names: %s/%s", OpPut, OpDelete)
	}
}

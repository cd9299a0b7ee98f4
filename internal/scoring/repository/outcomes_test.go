package repository

import (
	"math"
	"testing"
)

func TestInt32PtrRefusesWrappingCounts(t *testing.T) {
	if v, err := int32Ptr(nil); err != nil || v != nil {
		t.Fatalf("expected nil to stay nil, got %v (%v)", v, err)
	}

	n := math.MaxInt32
	v, err := int32Ptr(&n)
	if err != nil || *v != math.MaxInt32 {
		t.Fatalf("expected %d to fit, got %v (%v)", n, v, err)
	}

	n++
	if _, err := int32Ptr(&n); err == nil {
		t.Fatalf("expected %d to be refused", n)
	}
}

func TestIntPtrWidens(t *testing.T) {
	var n int32 = 7
	if v := intPtr(&n); v == nil || *v != 7 {
		t.Fatalf("expected 7, got %v", v)
	}
	if intPtr(nil) != nil {
		t.Fatalf("expected nil to stay nil")
	}
}

package config

import (
	"testing"
	"time"
)

func TestIntAndDuration(t *testing.T) {
	t.Setenv("PRICE_CENTS", "5000")
	t.Setenv("BAD_INT", "-3")
	t.Setenv("TTL", "45m")

	n, err := Int("PRICE_CENTS", 1)
	if err != nil || n != 5000 {
		t.Fatalf("Int = %d, %v", n, err)
	}
	if _, err := Int("BAD_INT", 1); err == nil {
		t.Fatal("expected error for negative int")
	}
	if n, err := Int("UNSET_INT", 7); err != nil || n != 7 {
		t.Fatalf("expected fallback 7, got %d, %v", n, err)
	}

	d, err := Duration("TTL", time.Minute)
	if err != nil || d != 45*time.Minute {
		t.Fatalf("Duration = %s, %v", d, err)
	}
}

func TestBoolAndList(t *testing.T) {
	t.Setenv("FLAG_ON", "yes")
	t.Setenv("FLAG_OFF", "0")
	t.Setenv("BROKERS", "a:9092, ,b:9092")

	if !Bool("FLAG_ON", false) {
		t.Fatal("expected FLAG_ON true")
	}
	if Bool("FLAG_OFF", true) {
		t.Fatal("expected FLAG_OFF false")
	}
	if !Bool("FLAG_UNSET", true) {
		t.Fatal("expected fallback true")
	}
	got := List("BROKERS", "")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("unexpected list %v", got)
	}
}

func TestPort(t *testing.T) {
	t.Setenv("PORT", "70000")
	if _, err := Port("PORT", "8083"); err == nil {
		t.Fatal("expected invalid port error")
	}
}

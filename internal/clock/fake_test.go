package clock_test

import (
	"testing"
	"time"

	"fieldline/internal/clock"
)

func TestFakeTickerFiresOnAdvance(t *testing.T) {
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	c := clock.Fake(start)
	tk := c.NewTicker(time.Second)
	select {
	case <-tk.C:
		t.Fatalf("ticker fired before advance")
	default:
	}
	c.Advance(time.Second)
	select {
	case at := <-tk.C:
		if !at.Equal(start.Add(time.Second)) {
			t.Fatalf("unexpected tick time %v", at)
		}
	default:
		t.Fatalf("expected tick after advance")
	}
	if got := c.Now(); !got.Equal(start.Add(time.Second)) {
		t.Fatalf("now = %v", got)
	}
}

func TestFakeTickerStop(t *testing.T) {
	c := clock.Fake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	tk := c.NewTicker(time.Second)
	if c.ActiveTickers() != 1 {
		t.Fatalf("expected one active ticker")
	}
	tk.Stop()
	if c.ActiveTickers() != 0 {
		t.Fatalf("expected no active tickers after stop")
	}
	c.Advance(5 * time.Second)
	select {
	case <-tk.C:
		t.Fatalf("stopped ticker fired")
	default:
	}
}

func TestFakeTickerDropsWhenFull(t *testing.T) {
	c := clock.Fake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	tk := c.NewTicker(time.Second)
	c.Advance(3 * time.Second)
	<-tk.C
	select {
	case <-tk.C:
		t.Fatalf("expected extra ticks to be dropped")
	default:
	}
}

package pool

import (
	"context"
	"testing"

	"github.com/coredb-go/mysqlwire"
)

func TestNewRejectsInvalidSizes(t *testing.T) {
	cfg, err := mysqlwire.NewConfig("127.0.0.1:3306")
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}

	cases := []struct {
		name string
		opts Options
	}{
		{"negative minsize", Options{MinSize: -1, MaxSize: 5}},
		{"maxsize below minsize", Options{MinSize: 5, MaxSize: 2}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := New(context.Background(), cfg, c.opts); err == nil {
				t.Fatal("expected an error, got nil")
			}
		})
	}
}

// TestAcquireRejectsOnClosingPool exercises the misuse path without a
// live server by constructing a Pool with MinSize 0 (no dial needed at
// New time) and marking it closing before Acquire.
func TestAcquireRejectsOnClosingPool(t *testing.T) {
	cfg, err := mysqlwire.NewConfig("127.0.0.1:3306")
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	p, err := New(context.Background(), cfg, Options{MinSize: 0, MaxSize: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := p.Acquire(context.Background()); err == nil {
		t.Fatal("expected Acquire to fail on a closing pool")
	}
}

func TestStatsInvariantOnEmptyPool(t *testing.T) {
	cfg, err := mysqlwire.NewConfig("127.0.0.1:3306")
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	p, err := New(context.Background(), cfg, Options{MinSize: 0, MaxSize: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stats := p.Stats()
	if got := stats.Free + stats.Used + stats.Acquiring; got > stats.MaxSize {
		t.Fatalf("free+used+acquiring = %d, exceeds maxsize %d", got, stats.MaxSize)
	}
	if stats.Free != 0 || stats.Used != 0 {
		t.Fatalf("expected an empty pool with minsize 0, got %+v", stats)
	}
}

package events

import (
	"path/filepath"
	"testing"

	"github.com/renaultluk/sweat-coin/core/types"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus(nil)
	first, cancelFirst := bus.Subscribe(4)
	second, cancelSecond := bus.Subscribe(4)
	defer cancelSecond()

	bus.Emit(&types.Event{Type: "ledger.minted", Attributes: map[string]string{"amount": "5"}})

	for name, ch := range map[string]<-chan *types.Event{"first": first, "second": second} {
		select {
		case evt := <-ch:
			if evt.Type != "ledger.minted" || evt.Attributes["amount"] != "5" {
				t.Fatalf("%s subscriber got unexpected event %+v", name, evt)
			}
		default:
			t.Fatalf("%s subscriber received nothing", name)
		}
	}

	cancelFirst()
	bus.Emit(&types.Event{Type: "ledger.burned"})
	if evt := <-second; evt.Type != "ledger.burned" {
		t.Fatalf("unexpected event after cancel: %+v", evt)
	}
	if _, open := <-first; open {
		t.Fatal("cancelled subscription channel still open")
	}
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus(nil)
	ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Emit(&types.Event{Type: "a"})
	bus.Emit(&types.Event{Type: "b"}) // buffer full, must not block

	if evt := <-ch; evt.Type != "a" {
		t.Fatalf("unexpected first event %+v", evt)
	}
	select {
	case evt := <-ch:
		t.Fatalf("expected drop, got %+v", evt)
	default:
	}
}

func TestJournalAppendReplay(t *testing.T) {
	journal, err := OpenJournal(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer journal.Close()

	for _, typ := range []string{"sweat.reward.issued", "sweat.aggregate.updated", "market.dataset.created"} {
		if _, err := journal.Append(&types.Event{Type: typ, Attributes: map[string]string{"k": typ}}); err != nil {
			t.Fatalf("append %s: %v", typ, err)
		}
	}

	var got []string
	var seqs []uint64
	if err := journal.Replay(0, func(seq uint64, evt *types.Event) error {
		got = append(got, evt.Type)
		seqs = append(seqs, seq)
		return nil
	}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	want := []string{"sweat.reward.issued", "sweat.aggregate.updated", "market.dataset.created"}
	if len(got) != len(want) {
		t.Fatalf("replayed %d events, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %s, want %s", i, got[i], want[i])
		}
		if i > 0 && seqs[i] <= seqs[i-1] {
			t.Fatalf("sequence not increasing: %v", seqs)
		}
	}

	// Partial replay starts mid-stream.
	var tail []string
	if err := journal.Replay(seqs[1], func(_ uint64, evt *types.Event) error {
		tail = append(tail, evt.Type)
		return nil
	}); err != nil {
		t.Fatalf("partial replay: %v", err)
	}
	if len(tail) != 2 || tail[0] != want[1] {
		t.Fatalf("unexpected tail %v", tail)
	}
}

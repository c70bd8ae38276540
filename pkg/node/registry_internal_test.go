package node

import (
	"context"
	"errors"
	"testing"
)

type runnerA struct{}

func (runnerA) Run(context.Context, *Node[struct{}, int]) (int, error) { return 1, nil }

func TestLookup_Ambiguous(t *testing.T) {
	reg := NewRegistry()
	reg.entries["example.com/a.Train"] = &entry[struct{}, int]{name: "Train", pkg: "example.com/a", runner: runnerA{}}
	reg.entries["example.com/b.Train"] = &entry[struct{}, int]{name: "Train", pkg: "example.com/b", runner: runnerA{}}

	if _, err := reg.Lookup("Train"); !errors.Is(err, ErrAmbiguousNode) {
		t.Errorf("unexpected error: %v", err)
	}

	e, err := reg.Lookup("example.com/b.Train")
	if err != nil {
		t.Fatal(err)
	}
	if e.Package() != "example.com/b" {
		t.Errorf("unexpected entry: %s", e.FullName())
	}

	all := reg.All()
	if len(all) != 2 || all[0].Package() != "example.com/a" || all[1].Package() != "example.com/b" {
		t.Errorf("unexpected order: %v", all)
	}
}

func TestHooks(t *testing.T) {
	hs := hooks[func() int]{}
	hs.add(func() int { return 1 })
	h := hs.add(func() int { return 2 })
	hs.add(func() int { return 3 })

	h.Remove()

	got := []int{}
	for _, f := range hs.list() {
		got = append(got, f())
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("unexpected hooks: %v", got)
	}
}

package index

import "testing"

func TestSortByRecencyKeepsTieOrder(t *testing.T) {
	rs := []Record{
		{Prompt: "first", Timestamp: 5},
		{Prompt: "older", Timestamp: 1},
		{Prompt: "second", Timestamp: 5},
	}
	SortByRecency(rs)
	if rs[0].Prompt != "first" || rs[1].Prompt != "second" || rs[2].Prompt != "older" {
		t.Fatalf("order %v", rs)
	}
}

func TestWithoutAndFind(t *testing.T) {
	rs := []Record{{Prompt: "a", RequestID: "1"}, {Prompt: "b", RequestID: "2"}}
	out := Without(rs, "a")
	if len(out) != 1 || out[0].Prompt != "b" || len(rs) != 2 {
		t.Fatalf("Without = %v (input %v)", out, rs)
	}
	if r, ok := Find(rs, "b"); !ok || r.RequestID != "2" {
		t.Fatalf("Find = %v %v", r, ok)
	}
	if _, ok := Find(rs, "B"); ok {
		t.Fatal("Find must be exact")
	}
}

func TestFilter(t *testing.T) {
	rs := []Record{{Prompt: "Alpha CRM"}, {Prompt: "beta"}, {Prompt: "crm tools"}}
	if got := Filter(rs, "  crm ", 0); len(got) != 2 {
		t.Fatalf("Filter = %v", got)
	}
	if got := Filter(rs, "", 2); len(got) != 2 || got[1].Prompt != "beta" {
		t.Fatalf("Filter limit = %v", got)
	}
}

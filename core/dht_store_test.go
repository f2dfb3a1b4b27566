package core

import "testing"

func TestDHTStoreRecordLinkAndGetLinks(t *testing.T) {
	d := NewDHTStore(NewMemoryCAS(), NewMemoryEAV())
	base := Address("base1")

	if err := d.RecordLink(base, "target1", "friend", "t1"); err != nil {
		t.Fatalf("record link: %v", err)
	}
	if err := d.RecordLink(base, "target2", "friend", "t2"); err != nil {
		t.Fatalf("record link: %v", err)
	}

	results, err := d.GetLinks(LinkQuery{Base: base})
	if err != nil {
		t.Fatalf("get links: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 links, got %d", len(results))
	}
	for _, r := range results {
		if r.Status != LinkLive {
			t.Fatalf("expected live status, got %v", r.Status)
		}
	}
}

func TestDHTStoreGetLinksFiltersByLinkTypeRegex(t *testing.T) {
	d := NewDHTStore(NewMemoryCAS(), NewMemoryEAV())
	base := Address("base1")
	if err := d.RecordLink(base, "t1", "friend", "a"); err != nil {
		t.Fatalf("record link: %v", err)
	}
	if err := d.RecordLink(base, "t2", "follower", "a"); err != nil {
		t.Fatalf("record link: %v", err)
	}

	rx, err := compileRegex("^friend$")
	if err != nil {
		t.Fatalf("compile regex: %v", err)
	}
	results, err := d.GetLinks(LinkQuery{Base: base, LinkTypeRegex: rx})
	if err != nil {
		t.Fatalf("get links: %v", err)
	}
	if len(results) != 1 || results[0].LinkType != "friend" {
		t.Fatalf("expected only 'friend' links, got %+v", results)
	}
}

func TestDHTStoreGetLinksRemoveTombstones(t *testing.T) {
	d := NewDHTStore(NewMemoryCAS(), NewMemoryEAV())
	base := Address("base1")
	if err := d.RecordLink(base, "target1", "friend", "t1"); err != nil {
		t.Fatalf("record link: %v", err)
	}
	if err := d.RecordLinkRemove(base, "target1", "friend", "t1"); err != nil {
		t.Fatalf("record link remove: %v", err)
	}

	all, err := d.GetLinks(LinkQuery{Base: base, Crud: CrudAll})
	if err != nil {
		t.Fatalf("get links: %v", err)
	}
	if len(all) != 1 || all[0].Status != LinkDeleted {
		t.Fatalf("expected one deleted link, got %+v", all)
	}

	live, err := d.GetLinks(LinkQuery{Base: base, Crud: CrudLiveOnly})
	if err != nil {
		t.Fatalf("get links: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("expected no live links after removal, got %+v", live)
	}

	deleted, err := d.GetLinks(LinkQuery{Base: base, Crud: CrudDeletedOnly})
	if err != nil {
		t.Fatalf("get links: %v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("expected one deleted link, got %+v", deleted)
	}
}

func TestDHTStoreGetLinksKeepsDistinctTargetsUnderSameTypeAndTag(t *testing.T) {
	d := NewDHTStore(NewMemoryCAS(), NewMemoryEAV())
	base := Address("base1")
	if err := d.RecordLink(base, "B", "test-type", "test-tag"); err != nil {
		t.Fatalf("record link: %v", err)
	}
	if err := d.RecordLink(base, "C", "test-type", "test-tag"); err != nil {
		t.Fatalf("record link: %v", err)
	}

	live, err := d.GetLinks(LinkQuery{Base: base, Crud: CrudLiveOnly})
	if err != nil {
		t.Fatalf("get links: %v", err)
	}
	if len(live) != 2 {
		t.Fatalf("expected both A->B and A->C to survive as distinct live links, got %+v", live)
	}
	targets := map[Address]bool{}
	for _, r := range live {
		targets[r.Target] = true
	}
	if !targets["B"] || !targets["C"] {
		t.Fatalf("expected targets B and C both present, got %+v", live)
	}

	if err := d.RecordLinkRemove(base, "B", "test-type", "test-tag"); err != nil {
		t.Fatalf("record link remove: %v", err)
	}

	live, err = d.GetLinks(LinkQuery{Base: base, Crud: CrudLiveOnly})
	if err != nil {
		t.Fatalf("get links: %v", err)
	}
	if len(live) != 1 || live[0].Target != "C" {
		t.Fatalf("expected only C to remain live after removing A->B, got %+v", live)
	}

	deleted, err := d.GetLinks(LinkQuery{Base: base, Crud: CrudDeletedOnly})
	if err != nil {
		t.Fatalf("get links: %v", err)
	}
	if len(deleted) != 1 || deleted[0].Target != "B" {
		t.Fatalf("expected B to be the only deleted link, got %+v", deleted)
	}
}

func TestDHTStoreGetLinksPagination(t *testing.T) {
	d := NewDHTStore(NewMemoryCAS(), NewMemoryEAV())
	base := Address("base1")
	targets := []string{"a", "b", "c", "d", "e"}
	for i, target := range targets {
		if err := d.RecordLink(base, Address(target), "friend", string(rune('a'+i))); err != nil {
			t.Fatalf("record link: %v", err)
		}
	}

	page0, err := d.GetLinks(LinkQuery{Base: base, PageNumber: 0, PageSize: 2})
	if err != nil {
		t.Fatalf("get links: %v", err)
	}
	if len(page0) != 2 {
		t.Fatalf("expected page size 2, got %d", len(page0))
	}

	page2, err := d.GetLinks(LinkQuery{Base: base, PageNumber: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("get links: %v", err)
	}
	if len(page2) != 1 {
		t.Fatalf("expected last page to hold 1 remaining result, got %d", len(page2))
	}

	pageOOB, err := d.GetLinks(LinkQuery{Base: base, PageNumber: 10, PageSize: 2})
	if err != nil {
		t.Fatalf("get links: %v", err)
	}
	if len(pageOOB) != 0 {
		t.Fatalf("expected no results past the end, got %d", len(pageOOB))
	}
}

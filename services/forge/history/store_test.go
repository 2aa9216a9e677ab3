// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import "testing"

func iter(seq, score int, artifact string) Iteration {
	return Iteration{
		Seq:        seq,
		Artifact:   artifact,
		Evaluation: Evaluation{Score: score},
	}
}

func TestStoreAppendAndActive(t *testing.T) {
	s := NewStore()

	if _, ok := s.Active(); ok {
		t.Fatal("empty store should have no active iteration")
	}

	if err := s.Append(iter(1, 40, "v1")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Append(iter(2, 60, "v2")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	active, ok := s.Active()
	if !ok || active.Seq != 2 {
		t.Errorf("active = %d, want 2", active.Seq)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestStoreRejectsOutOfOrder(t *testing.T) {
	s := NewStore()
	if err := s.Append(iter(5, 10, "x")); err == nil {
		t.Fatal("expected error for out-of-order seq")
	}
	_ = s.Append(iter(1, 10, "x"))
	if err := s.Append(iter(1, 10, "x")); err == nil {
		t.Fatal("expected error for duplicate seq")
	}
}

func TestStoreRollbackKeepsHistory(t *testing.T) {
	s := NewStore()
	for i, score := range []int{75, 45, 55} {
		if err := s.Append(iter(i+1, score, "v")); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.SetActive(1); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}
	if s.ActiveSeq() != 1 {
		t.Errorf("ActiveSeq() = %d, want 1", s.ActiveSeq())
	}

	// Rollback must not rewrite history.
	if s.Len() != 3 {
		t.Errorf("Len() = %d after rollback, want 3", s.Len())
	}
	if _, ok := s.Get(3); !ok {
		t.Error("iteration 3 missing after rollback")
	}

	if err := s.SetActive(9); err == nil {
		t.Error("SetActive(9) should fail")
	}
}

func TestStoreScoresAndBest(t *testing.T) {
	s := NewStore()
	for i, score := range []int{40, 85, 85, 30} {
		if err := s.Append(iter(i+1, score, "v")); err != nil {
			t.Fatal(err)
		}
	}

	scores := s.Scores()
	if len(scores) != 4 || scores[1].Score != 85 || scores[3].Seq != 4 {
		t.Errorf("Scores() = %v", scores)
	}

	// Earliest wins a tie.
	best, ok := s.Best()
	if !ok || best.Seq != 2 {
		t.Errorf("Best().Seq = %d, want 2", best.Seq)
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	archive, err := OpenArchive(ArchiveConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenArchive() error = %v", err)
	}
	defer archive.Close()

	run := ArchivedRun{
		ID:        "run-1",
		Task:      "write fizzbuzz",
		Outcome:   "ACCEPTED",
		BestScore: 100,
		Iterations: []Iteration{
			iter(1, 100, "print('fizzbuzz')"),
		},
	}
	if err := archive.SaveRun(run); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	loaded, err := archive.LoadRun("run-1")
	if err != nil {
		t.Fatalf("LoadRun() error = %v", err)
	}
	if loaded.Outcome != "ACCEPTED" || len(loaded.Iterations) != 1 {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Iterations[0].Artifact != "print('fizzbuzz')" {
		t.Errorf("artifact = %q", loaded.Iterations[0].Artifact)
	}

	ids, err := archive.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "run-1" {
		t.Errorf("ListRuns() = %v", ids)
	}

	if _, err := archive.LoadRun("missing"); err == nil {
		t.Error("LoadRun(missing) should fail")
	}
}

package widget

import (
	"errors"
	"reflect"
	"testing"
)

func rate(t *testing.T, s State, index int) (State, *Request) {
	t.Helper()
	next, eff, err := Transition(s, Event{Kind: StarClicked, Index: index}, Options{})
	if err != nil {
		t.Fatalf("StarClicked(%d) unexpected error: %v", index, err)
	}
	if eff.Request == nil {
		t.Fatalf("StarClicked(%d) produced no request", index)
	}
	return next, eff.Request
}

func TestStarClickFillsPrefix(t *testing.T) {
	for n := 1; n <= 10; n++ {
		for k := 1; k <= n; k++ {
			s, req := rate(t, New("7", Detail, n, 0), k)
			for i := 1; i <= n; i++ {
				if got, want := s.Filled(i), i <= k; got != want {
					t.Fatalf("N=%d k=%d star %d filled = %v, want %v", n, k, i, got, want)
				}
			}
			if req.Kind != RequestRate || req.Rating != k || req.Book != "7" {
				t.Fatalf("unexpected request %+v", req)
			}
		}
	}
}

func TestStarClickIdempotent(t *testing.T) {
	once, _ := rate(t, New("1", Detail, 5, 2), 4)
	twice, _ := rate(t, once, 4)
	if !reflect.DeepEqual(once.FilledMask(), twice.FilledMask()) {
		t.Fatalf("mask after second click = %v, want %v", twice.FilledMask(), once.FilledMask())
	}
	if once.Phase() != twice.Phase() || once.AffordanceVisible != twice.AffordanceVisible {
		t.Fatalf("state changed on repeated click: %+v vs %+v", once, twice)
	}
}

func TestStarClickOutOfRange(t *testing.T) {
	s := New("1", Detail, 5, 3)
	for _, idx := range []int{0, -1, 6} {
		next, eff, err := Transition(s, Event{Kind: StarClicked, Index: idx}, Options{})
		if !errors.Is(err, ErrStarOutOfRange) {
			t.Fatalf("index %d: err = %v, want ErrStarOutOfRange", idx, err)
		}
		if eff.Request != nil || next != s {
			t.Fatalf("index %d: state or request changed", idx)
		}
	}
}

func TestNewInitialState(t *testing.T) {
	tests := []struct {
		name       string
		initial    int
		wantMask   []bool
		affordance bool
	}{
		{"three", 3, []bool{true, true, true, false, false}, true},
		{"zero", 0, []bool{false, false, false, false, false}, false},
		{"negative", -2, []bool{false, false, false, false, false}, false},
		{"clamped", 9, []bool{true, true, true, true, true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("b", Detail, 5, tt.initial)
			if got := s.FilledMask(); !reflect.DeepEqual(got, tt.wantMask) {
				t.Fatalf("mask = %v, want %v", got, tt.wantMask)
			}
			if s.AffordanceVisible != tt.affordance {
				t.Fatalf("affordance = %v, want %v", s.AffordanceVisible, tt.affordance)
			}
		})
	}
}

func TestRateSucceededRevealsAffordanceOnDetailOnly(t *testing.T) {
	for _, variant := range []Variant{Detail, Profile} {
		s, req := rate(t, New("1", variant, 5, 0), 2)
		s, eff, err := Transition(s, Event{Kind: RateSucceeded, Index: req.Rating, Seq: req.Seq}, Options{})
		if err != nil || eff.Stale {
			t.Fatalf("%s: err=%v stale=%v", variant, err, eff.Stale)
		}
		if want := variant == Detail; s.AffordanceVisible != want {
			t.Fatalf("%s: affordance = %v, want %v", variant, s.AffordanceVisible, want)
		}
		if s.Acked != 2 {
			t.Fatalf("%s: acked = %d, want 2", variant, s.Acked)
		}
	}
}

func TestClearRating(t *testing.T) {
	for initial := 1; initial <= 5; initial++ {
		detail := New("1", Detail, 5, initial)
		detail, eff, err := Transition(detail, Event{Kind: DeleteClicked}, Options{})
		if err != nil || eff.Request == nil || eff.Request.Kind != RequestRemove {
			t.Fatalf("delete click: err=%v eff=%+v", err, eff)
		}
		detail, _, _ = Transition(detail, Event{Kind: RemoveSucceeded, Seq: eff.Request.Seq}, Options{})
		if detail.Phase() != Unrated || detail.AffordanceVisible {
			t.Fatalf("detail after clear: %+v", detail)
		}

		profile := New("1", Profile, 5, initial)
		profile, eff, _ = Transition(profile, Event{Kind: DeleteClicked}, Options{})
		profile, _, _ = Transition(profile, Event{Kind: RemoveSucceeded, Seq: eff.Request.Seq}, Options{})
		if profile.Phase() != Removed {
			t.Fatalf("profile after clear: phase = %s, want REMOVED", profile.Phase())
		}
		if _, _, err := Transition(profile, Event{Kind: StarClicked, Index: 1}, Options{}); !errors.Is(err, ErrRemoved) {
			t.Fatalf("gesture on removed widget: err = %v", err)
		}
	}
}

func TestDeleteClickedHiddenAffordance(t *testing.T) {
	_, eff, err := Transition(New("1", Detail, 5, 0), Event{Kind: DeleteClicked}, Options{})
	if !errors.Is(err, ErrAffordanceHidden) || eff.Request != nil {
		t.Fatalf("err = %v, request = %+v", err, eff.Request)
	}
}

func TestFailurePreservesState(t *testing.T) {
	start := New("1", Detail, 5, 2)

	s, req := rate(t, start, 5)
	s, _, _ = Transition(s, Event{Kind: RateFailed, Index: req.Rating, Seq: req.Seq}, Options{RollbackOnFailure: true})
	if !reflect.DeepEqual(s.FilledMask(), start.FilledMask()) || s.AffordanceVisible != start.AffordanceVisible {
		t.Fatalf("rollback: mask = %v, want %v", s.FilledMask(), start.FilledMask())
	}

	s, req = rate(t, start, 5)
	s, _, _ = Transition(s, Event{Kind: RateFailed, Index: req.Rating, Seq: req.Seq}, Options{})
	if s.Rating != 5 {
		t.Fatalf("without rollback rating = %d, want 5", s.Rating)
	}

	s, eff, _ := Transition(start, Event{Kind: DeleteClicked}, Options{})
	s, _, _ = Transition(s, Event{Kind: RemoveFailed, Seq: eff.Request.Seq}, Options{})
	if !reflect.DeepEqual(s.FilledMask(), start.FilledMask()) || !s.AffordanceVisible {
		t.Fatalf("remove failure changed state: %+v", s)
	}
}

func TestStaleCompletionRecordsAck(t *testing.T) {
	s := New("1", Detail, 5, 0)
	s, first := rate(t, s, 2)
	s, second := rate(t, s, 4)

	s, eff, _ := Transition(s, Event{Kind: RateSucceeded, Index: first.Rating, Seq: first.Seq}, Options{})
	if !eff.Stale {
		t.Fatal("first completion should be stale")
	}
	if s.Rating != 4 {
		t.Fatalf("stale ack changed the displayed rating: %+v", s)
	}
	if s.Acked != 2 || !s.AffordanceVisible {
		t.Fatalf("stale ack not recorded: %+v", s)
	}

	s, eff, _ = Transition(s, Event{Kind: RateSucceeded, Index: second.Rating, Seq: second.Seq}, Options{})
	if eff.Stale || !s.AffordanceVisible || s.Rating != 4 || s.Acked != 4 {
		t.Fatalf("latest ack not applied: %+v", s)
	}
}

func TestStaleRateAckAfterClear(t *testing.T) {
	s := New("1", Detail, 5, 3)
	s, req := rate(t, s, 5)
	s, eff, _ := Transition(s, Event{Kind: DeleteClicked}, Options{})
	s, _, _ = Transition(s, Event{Kind: RemoveSucceeded, Seq: eff.Request.Seq}, Options{})

	s, eff, _ = Transition(s, Event{Kind: RateSucceeded, Index: req.Rating, Seq: req.Seq}, Options{})
	if !eff.Stale || s.AffordanceVisible || s.Phase() != Unrated {
		t.Fatalf("late rate ack resurrected widget: %+v", s)
	}
}

func TestOutOfOrderResponsesKeepLastClick(t *testing.T) {
	s := New("1", Detail, 5, 0)
	var reqs []*Request
	for _, k := range []int{1, 3, 5, 2} {
		var req *Request
		s, req = rate(t, s, k)
		reqs = append(reqs, req)
	}
	for _, i := range []int{3, 0, 2, 1} {
		s, _, _ = Transition(s, Event{Kind: RateSucceeded, Index: reqs[i].Rating, Seq: reqs[i].Seq}, Options{RollbackOnFailure: true})
	}
	if s.Rating != 2 {
		t.Fatalf("rating = %d, want last click 2", s.Rating)
	}
}

func TestParseVariant(t *testing.T) {
	if v, err := ParseVariant("profile"); err != nil || v != Profile {
		t.Fatalf("ParseVariant(profile) = %v, %v", v, err)
	}
	if v, err := ParseVariant(""); err != nil || v != Detail {
		t.Fatalf("ParseVariant(\"\") = %v, %v", v, err)
	}
	if _, err := ParseVariant("sidebar"); err == nil {
		t.Fatal("expected error for unknown variant")
	}
}

func TestStaleFailureIgnored(t *testing.T) {
	s := New("1", Detail, 5, 3)
	s, first := rate(t, s, 1)
	s, _ = rate(t, s, 5)

	next, eff, _ := Transition(s, Event{Kind: RateFailed, Index: first.Rating, Seq: first.Seq}, Options{RollbackOnFailure: true})
	if !eff.Stale || next != s {
		t.Fatalf("stale failure changed state: %+v", next)
	}
}

func TestSupersededAckThenLatestFailure(t *testing.T) {
	tests := []struct {
		name       string
		opts       Options
		rating     int
		affordance bool
	}{
		{"rollback", Options{RollbackOnFailure: true}, 3, true},
		{"no rollback", Options{}, 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("1", Detail, 5, 0)
			s, first := rate(t, s, 3)
			s, second := rate(t, s, 4)

			s, _, _ = Transition(s, Event{Kind: RateSucceeded, Index: first.Rating, Seq: first.Seq}, tt.opts)
			s, _, _ = Transition(s, Event{Kind: RateFailed, Index: second.Rating, Seq: second.Seq}, tt.opts)

			if s.Acked != 3 {
				t.Fatalf("acked = %d, want 3", s.Acked)
			}
			if s.Rating != tt.rating || s.AffordanceVisible != tt.affordance || s.Phase() != Rated {
				t.Fatalf("state = %+v", s)
			}
		})
	}
}

func TestLatestFailureThenSupersededAck(t *testing.T) {
	opts := Options{RollbackOnFailure: true}
	s := New("1", Detail, 5, 0)
	s, first := rate(t, s, 3)
	s, second := rate(t, s, 4)

	s, _, _ = Transition(s, Event{Kind: RateFailed, Index: second.Rating, Seq: second.Seq}, opts)
	if s.Rating != 0 || s.AffordanceVisible {
		t.Fatalf("after latest failure: %+v", s)
	}
	s, eff, _ := Transition(s, Event{Kind: RateSucceeded, Index: first.Rating, Seq: first.Seq}, opts)
	if !eff.Stale || s.Acked != 3 || s.Rating != 3 || !s.AffordanceVisible {
		t.Fatalf("late ack after rollback: %+v", s)
	}
}

func TestSupersededRemoveThenRateFailure(t *testing.T) {
	opts := Options{RollbackOnFailure: true}
	s := New("1", Detail, 5, 3)
	s, eff, err := Transition(s, Event{Kind: DeleteClicked}, opts)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	remove := eff.Request
	s, next := rate(t, s, 5)

	s, _, _ = Transition(s, Event{Kind: RemoveSucceeded, Seq: remove.Seq}, opts)
	if s.Acked != 0 || s.Rating != 5 || !s.AffordanceVisible {
		t.Fatalf("icon hidden while a newer rate is pending: %+v", s)
	}

	s, _, _ = Transition(s, Event{Kind: RateFailed, Index: next.Rating, Seq: next.Seq}, opts)
	if s.Rating != 0 || s.AffordanceVisible || s.Phase() != Unrated {
		t.Fatalf("state after failed rate = %+v, want unrated", s)
	}
}

func TestSupersededRemoveOnProfile(t *testing.T) {
	opts := Options{RollbackOnFailure: true}
	s := New("1", Profile, 5, 3)
	s, eff, _ := Transition(s, Event{Kind: DeleteClicked}, opts)
	remove := eff.Request
	s, next := rate(t, s, 2)

	s, _, _ = Transition(s, Event{Kind: RemoveSucceeded, Seq: remove.Seq}, opts)
	if s.Removed {
		t.Fatal("row removed while a newer rate is pending")
	}
	s, _, _ = Transition(s, Event{Kind: RateFailed, Index: next.Rating, Seq: next.Seq}, opts)
	if s.Phase() != Removed {
		t.Fatalf("phase = %s, want REMOVED after the rate that followed the removal failed", s.Phase())
	}

	s = New("1", Profile, 5, 3)
	s, eff, _ = Transition(s, Event{Kind: DeleteClicked}, opts)
	remove = eff.Request
	s, next = rate(t, s, 2)
	s, _, _ = Transition(s, Event{Kind: RateFailed, Index: next.Rating, Seq: next.Seq}, opts)
	s, _, _ = Transition(s, Event{Kind: RemoveSucceeded, Seq: remove.Seq}, opts)
	if s.Phase() != Removed {
		t.Fatalf("phase = %s, want REMOVED once nothing newer is pending", s.Phase())
	}
}

package core

import "testing"

func TestParseTriggerKey(t *testing.T) {
	cases := []struct {
		key  string
		stat string
		op   CompareOp
	}{
		{"order_count_min", "order_count", GreaterOrEqual},
		{"m2u_avg_length_min", "m2u_avg_length", GreaterOrEqual},
		{"total_points_max", "total_points", LessOrEqual},
		{"order_count", "order_count", GreaterOrEqual},
	}
	for _, c := range cases {
		stat, op, err := ParseTriggerKey(c.key)
		if err != nil {
			t.Fatalf("%s: %v", c.key, err)
		}
		if stat != c.stat || op != c.op {
			t.Fatalf("%s: got (%s, %v), want (%s, %v)", c.key, stat, op, c.stat, c.op)
		}
	}
}

func TestParseTriggerKeyInvalid(t *testing.T) {
	for _, key := range []string{"", "  ", "_min", "_max"} {
		if _, _, err := ParseTriggerKey(key); err == nil {
			t.Fatalf("expected error for %q", key)
		}
	}
}

func TestTriggerMatches(t *testing.T) {
	stats := Stats{"order_count": 3, "m2u_avg_length": 9.5}
	min, _ := NewTrigger("order_count_min", 3)
	if !min.Matches(stats) {
		t.Fatal("inclusive >= should pass at threshold")
	}
	max, _ := NewTrigger("m2u_avg_length_max", 9.0)
	if max.Matches(stats) {
		t.Fatal("<= should fail above threshold")
	}
	absent, _ := NewTrigger("perfect_reviews_min", 1)
	if absent.Matches(stats) {
		t.Fatal("absent stat reads as 0 and must fail a positive >= threshold")
	}
}

func TestBadgeQualifiesANDSemantics(t *testing.T) {
	tLen, _ := NewTrigger("m2u_avg_length_min", 9.0)
	tCnt, _ := NewTrigger("m2u_reviews_min", 6)
	badge := BadgeSpec{Name: "长度大王", Triggers: []Trigger{tLen, tCnt}}

	if badge.Qualifies(Stats{"m2u_avg_length": 9.5, "m2u_reviews": 4}) {
		t.Fatal("one failing trigger must block the badge")
	}
	if !badge.Qualifies(Stats{"m2u_avg_length": 9.5, "m2u_reviews": 6}) {
		t.Fatal("all triggers passing must grant")
	}
	// Flipping any single comparison to fail prevents the grant.
	if badge.Qualifies(Stats{"m2u_avg_length": 8.9, "m2u_reviews": 6}) {
		t.Fatal("flipped first trigger must block the badge")
	}
}

func TestBadgeZeroTriggersNeverQualifies(t *testing.T) {
	badge := BadgeSpec{Name: "manual-only"}
	if badge.Qualifies(Stats{"order_count": 1000}) {
		t.Fatal("zero-trigger badge must never auto-qualify")
	}
}

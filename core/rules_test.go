package core

import "testing"

func intp(v int) *int { return &v }

func floatp(v float64) *float64 { return &v }

func review(ratings [5]*int, text string) *Review {
	return &Review{
		ID:                1,
		RatingAppearance:  ratings[0],
		RatingFigure:      ratings[1],
		RatingService:     ratings[2],
		RatingAttitude:    ratings[3],
		RatingEnvironment: ratings[4],
		TextByUser:        text,
	}
}

func standardRules() RewardRules {
	return RewardRules{
		Base:           &BaseReward{Points: 50, XP: 20},
		HighScoreBonus: &HighScoreBonus{MinAvg: floatp(8.0), Points: 25, XP: 10},
		TextBonus:      &TextBonus{MinLen: 10, Points: 15, XP: 5},
	}
}

func TestEvaluateAllBonuses(t *testing.T) {
	r := review([5]*int{intp(9), intp(9), intp(10), intp(10), intp(9)}, "a really thorough writeup")
	got := standardRules().Evaluate(r)
	if got.Points != 90 || got.XP != 35 {
		t.Fatalf("got %+v, want {90 35}", got)
	}
}

func TestEvaluateBaseOnly(t *testing.T) {
	r := review([5]*int{intp(3), intp(4), intp(5), intp(4), intp(3)}, "")
	got := standardRules().Evaluate(r)
	if got.Points != 50 || got.XP != 20 {
		t.Fatalf("got %+v, want {50 20}", got)
	}
}

func TestEvaluateSkipsMissingDimensions(t *testing.T) {
	// Only two rated dimensions; average over the two, not over five.
	r := review([5]*int{intp(9), nil, intp(9), nil, nil}, "")
	got := standardRules().Evaluate(r)
	if got.Points != 75 {
		t.Fatalf("expected high-score bonus over present dims, got %+v", got)
	}
}

func TestEvaluateAllAbsentRatings(t *testing.T) {
	r := review([5]*int{}, "")
	got := standardRules().Evaluate(r)
	if got.Points != 50 || got.XP != 20 {
		t.Fatalf("all-absent ratings must not trip threshold: %+v", got)
	}
}

func TestEvaluateMonotonicOverBase(t *testing.T) {
	rules := standardRules()
	cases := []*Review{
		review([5]*int{intp(1), intp(1), intp(1), intp(1), intp(1)}, ""),
		review([5]*int{intp(10), intp(10), intp(10), intp(10), intp(10)}, "plenty of text in this one"),
		review([5]*int{}, "short"),
	}
	for i, r := range cases {
		got := rules.Evaluate(r)
		if got.Points < rules.Base.Points || got.XP < rules.Base.XP {
			t.Fatalf("case %d: reward %+v below base", i, got)
		}
	}
}

func TestEvaluateTextTrimmed(t *testing.T) {
	r := review([5]*int{}, "   abc   ")
	got := standardRules().Evaluate(r)
	if got.Points != 50 {
		t.Fatalf("trimmed text below min_len must not earn bonus: %+v", got)
	}
}

func TestEvaluateTextRuneLength(t *testing.T) {
	// 10 CJK runes trip a min_len of 10 even though the byte count is larger.
	r := review([5]*int{}, "一二三四五六七八九十")
	got := standardRules().Evaluate(r)
	if got.Points != 65 {
		t.Fatalf("rune-counted text bonus missing: %+v", got)
	}
}

func TestEvaluateHighScoreWithoutThreshold(t *testing.T) {
	raw := []byte(`{"base":{"points":50,"xp":20},"high_score_bonus":{"points":25,"xp":10}}`)
	rules, err := ParseRewardRules(raw)
	if err != nil {
		t.Fatal(err)
	}
	r := review([5]*int{intp(1)}, "")
	if got := rules.Evaluate(r); got.Points != 50 || got.XP != 20 {
		t.Fatalf("bonus without min_avg must never fire: %+v", got)
	}
	r = review([5]*int{intp(10), intp(10), intp(10), intp(10), intp(10)}, "")
	if got := rules.Evaluate(r); got.Points != 50 {
		t.Fatalf("even a perfect rating cannot reach an unset threshold: %+v", got)
	}
}

func TestParseRewardRulesClampsNegatives(t *testing.T) {
	raw := []byte(`{"base":{"points":-5,"xp":-1},"text_bonus":{"min_len":-3,"points":2,"xp":2}}`)
	rules, err := ParseRewardRules(raw)
	if err != nil {
		t.Fatal(err)
	}
	if rules.Base.Points != 0 || rules.Base.XP != 0 || rules.TextBonus.MinLen != 0 {
		t.Fatalf("negatives not clamped: %+v %+v", rules.Base, rules.TextBonus)
	}
}

func TestParseRewardRulesEmpty(t *testing.T) {
	rules, err := ParseRewardRules(nil)
	if err != nil {
		t.Fatal(err)
	}
	got := rules.Evaluate(review([5]*int{intp(10), intp(10), intp(10), intp(10), intp(10)}, "text"))
	if got.Points != 0 || got.XP != 0 {
		t.Fatalf("empty rules must evaluate to zero reward: %+v", got)
	}
}

func TestParseRewardRulesInvalid(t *testing.T) {
	if _, err := ParseRewardRules([]byte(`{not json`)); err == nil {
		t.Fatal("expected parse error")
	}
}

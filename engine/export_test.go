package engine

import "time"

// SetBadgeClock overrides the evaluator's clock in tests.
func SetBadgeClock(ev *BadgeEvaluator, now func() time.Time) { ev.now = now }

package birthday

// MatchResult splits tracked records into those occurring on the target day
// and those occurring on the horizon day.
type MatchResult struct {
	Today    []*TrackedRecord
	Upcoming []*TrackedRecord
}

// Match compares every record's recurring key against todayKey and
// horizonKey. Pure and deterministic; grouping by chat is the caller's
// responsibility.
func Match(records []*TrackedRecord, todayKey, horizonKey string) MatchResult {
	var res MatchResult
	for _, rec := range records {
		switch rec.OccursOn {
		case todayKey:
			res.Today = append(res.Today, rec)
		case horizonKey:
			res.Upcoming = append(res.Upcoming, rec)
		}
	}
	return res
}

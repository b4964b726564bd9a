package agent

import "github.com/growthforge/forge/internal/models"

// QualifyingScore is the lowest score kept in the pipeline.
const QualifyingScore = 6

// Discovery is the scoring of a lead's audience.
type Discovery struct {
	Score   float64
	Segment string
	State   models.LeadState
}

// Discover scores a lead by follower count. Leads below QualifyingScore are
// discarded.
func Discover(followers int) Discovery {
	var d Discovery
	switch {
	case followers < 1000:
		d.Score, d.Segment = 3, "nano"
	case followers < 10000:
		d.Score, d.Segment = 6, "micro"
	case followers < 100000:
		d.Score, d.Segment = 8, "mid"
	default:
		d.Score, d.Segment = 9.5, "macro"
	}
	d.State = models.LeadStateDiscarded
	if d.Score >= QualifyingScore {
		d.State = models.LeadStateDiscovered
	}
	return d
}

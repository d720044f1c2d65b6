// Package score turns one interaction plus "now" into a scalar relevance
// weight. It is pure and stateless; callers may invoke it from any number of
// goroutines without locking.
package score

import (
	"time"

	"github.com/Protocol-Lattice/go-context/src/model"
)

// Multiplicative weighting factors. Base weight is 1.0 and every factor
// commutes, so the application order only matters for readability.
const (
	recencyHour = 1.8
	recencySix  = 1.5
	recencyDay  = 1.2

	kindConversationTurn = 1.5
	kindClientRequest    = 1.3
	kindAgentResponse    = 1.2

	lengthLong  = 1.3
	lengthShort = 1.2

	statusSuccess = 1.1
)

// Breakdown exposes the individual factors for diagnostics. BadTimestamp is
// set when the record carried no usable timestamp and recency degraded to
// its neutral value.
type Breakdown struct {
	Recency      float64 `json:"recency"`
	Kind         float64 `json:"kind"`
	Length       float64 `json:"length"`
	Status       float64 `json:"status"`
	Total        float64 `json:"total"`
	BadTimestamp bool    `json:"bad_timestamp,omitempty"`
}

// Score computes the relevance weight for one interaction at the given time.
// It never fails: a record with a missing timestamp simply scores as old.
func Score(in model.Interaction, now time.Time) float64 {
	return Detailed(in, now).Total
}

// Detailed computes the weight together with its factor breakdown.
func Detailed(in model.Interaction, now time.Time) Breakdown {
	b := Breakdown{Recency: 1.0, Kind: 1.0, Length: 1.0, Status: 1.0}

	if in.Timestamp.IsZero() || in.Timestamp.After(now) {
		b.BadTimestamp = true
	} else {
		// Boundary ages belong to the more recent bucket.
		age := now.Sub(in.Timestamp)
		switch {
		case age <= time.Hour:
			b.Recency = recencyHour
		case age <= 6*time.Hour:
			b.Recency = recencySix
		case age <= 24*time.Hour:
			b.Recency = recencyDay
		}
	}

	switch in.Kind {
	case model.KindConversationTurn:
		b.Kind = kindConversationTurn
	case model.KindClientRequest:
		b.Kind = kindClientRequest
	case model.KindAgentResponse:
		b.Kind = kindAgentResponse
	}

	// Buckets are exclusive: only the highest matching one applies.
	switch n := len(in.CombinedText()); {
	case n > 200:
		b.Length = lengthLong
	case n > 100:
		b.Length = lengthShort
	}

	if in.Status == model.StatusSuccess {
		b.Status = statusSuccess
	}

	b.Total = b.Recency * b.Kind * b.Length * b.Status
	return b
}

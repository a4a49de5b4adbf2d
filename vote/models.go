package vote

import (
	"errors"
	"time"

	"sealedcourt/account"
	"sealedcourt/ciphertext"
)

// Option is a cleartext vote choice. Votes are only ever stored encrypted;
// the enum exists for validation and for tallying decrypted results.
type Option uint8

const (
	FavorPlaintiff Option = 1
	FavorDefendant Option = 2
	Neutral        Option = 3
)

// Valid reports whether o is one of the enumerated options.
func (o Option) Valid() bool {
	return o >= FavorPlaintiff && o <= Neutral
}

func (o Option) String() string {
	switch o {
	case FavorPlaintiff:
		return "favor_plaintiff"
	case FavorDefendant:
		return "favor_defendant"
	case Neutral:
		return "neutral"
	default:
		return "invalid"
	}
}

var (
	ErrAlreadyVoted = errors.New("vote: already voted")
	ErrNotFound     = errors.New("vote: not found")
)

// Record mirrors the votes table. Records are immutable once written.
type Record struct {
	DisputeID              uint64
	Arbitrator             account.Address
	EncryptedVote          ciphertext.Handle
	EncryptedJustification ciphertext.Handle
	HasVoted               bool
	CastAt                 time.Time
}

// Tally counts decoded options, reading at most limit entries. Unknown values
// are ignored.
type Tally struct {
	Plaintiff uint
	Defendant uint
	Neutral   uint
}

// MatchesBallots reports whether decoded options are exactly one valid
// option per cast ballot.
func MatchesBallots(options []uint8, ballots int) bool {
	if len(options) != ballots {
		return false
	}
	for _, o := range options {
		if !Option(o).Valid() {
			return false
		}
	}
	return true
}

func Count(options []uint8, limit int) Tally {
	var t Tally
	for i, o := range options {
		if i >= limit {
			break
		}
		switch Option(o) {
		case FavorPlaintiff:
			t.Plaintiff++
		case FavorDefendant:
			t.Defendant++
		case Neutral:
			t.Neutral++
		}
	}
	return t
}

// Outcome is the strict-majority result of a tally.
type Outcome int

const (
	NoMajority Outcome = iota
	PlaintiffWins
	DefendantWins
	NeutralWins
)

// Outcome picks the option strictly greater than both others. Ties, and a
// neutral majority, leave the dispute without a winner.
func (t Tally) Outcome() Outcome {
	switch {
	case t.Plaintiff > t.Defendant && t.Plaintiff > t.Neutral:
		return PlaintiffWins
	case t.Defendant > t.Plaintiff && t.Defendant > t.Neutral:
		return DefendantWins
	case t.Neutral > t.Plaintiff && t.Neutral > t.Defendant:
		return NeutralWins
	default:
		return NoMajority
	}
}

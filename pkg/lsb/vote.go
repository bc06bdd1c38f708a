package lsb

import (
	"errors"

	"github.com/Davincible/siliconsig/pkg/signature"
)

// Verdict is the overall outcome of an extraction
type Verdict string

const (
	Verified Verdict = "VERIFIED"
	Marginal Verdict = "MARGINAL"
	Failed   Verdict = "FAILED"
)

// Reason is a machine-readable code explaining a verdict
type Reason string

const (
	ReasonOK                Reason = "ok"
	ReasonSingleCopy        Reason = "single_copy"
	ReasonMinorityRecovery  Reason = "minority_recovery"
	ReasonNoCopies          Reason = "no_copies"
	ReasonNoAlignment       Reason = "no_alignment"
	ReasonConflictingCopies Reason = "conflicting_copies"
)

var (
	// ErrInsufficientCopies is reported when no copy survived
	ErrInsufficientCopies = errors.New("lsb: insufficient copies recovered")

	// ErrConflictingCopies is reported when recovered copies disagree
	ErrConflictingCopies = errors.New("lsb: recovered copies disagree")
)

// Result is the voted outcome of an extraction
type Result struct {
	Verdict   Verdict
	Reason    Reason
	Recovered int
	Total     int
	Payload   *signature.Payload
	Copies    []Copy
	Scanned   bool
}

// Err maps a failed verdict to its sentinel error; nil otherwise
func (r *Result) Err() error {
	switch r.Reason {
	case ReasonNoCopies, ReasonNoAlignment:
		return ErrInsufficientCopies
	case ReasonConflictingCopies:
		return ErrConflictingCopies
	}
	return nil
}

// Offsets returns the offsets of the recovered copies
func (r *Result) Offsets() []int {
	var out []int
	for _, c := range r.Copies {
		if c.Recovered {
			out = append(out, c.Offset)
		}
	}
	return out
}

// vote combines per-copy outcomes. More than half of total agreeing is
// VERIFIED; a single copy, or an agreeing minority, is MARGINAL; nothing or
// disagreement is FAILED.
func vote(copies []Copy, total int) *Result {
	res := &Result{Copies: copies, Total: total}

	var first *Copy
	conflict := false
	for i := range copies {
		c := &copies[i]
		if !c.Recovered {
			continue
		}
		res.Recovered++
		if first == nil {
			first = c
			continue
		}
		if string(c.data) != string(first.data) {
			conflict = true
		}
	}

	switch {
	case res.Recovered == 0:
		res.Verdict, res.Reason = Failed, ReasonNoCopies
		return res
	case conflict:
		res.Verdict, res.Reason = Failed, ReasonConflictingCopies
		return res
	}

	p := first.Payload
	res.Payload = &p

	switch {
	case res.Recovered > total/2:
		res.Verdict, res.Reason = Verified, ReasonOK
	case res.Recovered == 1:
		res.Verdict, res.Reason = Marginal, ReasonSingleCopy
	default:
		res.Verdict, res.Reason = Marginal, ReasonMinorityRecovery
	}
	return res
}

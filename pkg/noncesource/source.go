// Package noncesource obtains proof-of-work nonces for an image hash. The
// signing path depends only on Source; Bridge talks to mining hardware and
// Simulated mines on the CPU for tests and hardware-less setups.
package noncesource

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Davincible/siliconsig/pkg/pow"
)

var (
	// ErrHardwareTimeout is returned when the bridge accepted the job but
	// produced no answer in time
	ErrHardwareTimeout = errors.New("noncesource: hardware timeout")

	// ErrHardwareUnreachable is returned when the bridge cannot be reached
	ErrHardwareUnreachable = errors.New("noncesource: hardware unreachable")

	// ErrInvalidReply is returned for replies that cannot be decoded
	ErrInvalidReply = errors.New("noncesource: invalid bridge reply")
)

// BridgeError carries an error string reported by the bridge itself
type BridgeError struct {
	Message string
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("noncesource: bridge reported: %s", e.Message)
}

// Job is the work handed to a source: the image hash takes the place of
// the previous block hash
type Job struct {
	PrevHash    [32]byte
	Version     uint32
	NTime       uint32
	Bits        uint32
	Extranonce2 []byte
}

// Solution is the work a source returns
type Solution struct {
	JobID       string
	Worker      string
	Nonce       uint32
	NTime       uint32
	Version     uint32
	Extranonce2 []byte
	Source      string
}

// Extranonce2Hex returns the extranonce2 the solution was mined with
func (s *Solution) Extranonce2Hex() string {
	return hex.EncodeToString(s.Extranonce2)
}

// Source acquires a nonce for a job. Implementations must honour ctx.
type Source interface {
	Acquire(ctx context.Context, job Job) (*Solution, error)
	Name() string
}

// IsHardwareError reports whether err means no proof could be obtained,
// as opposed to a proof being wrong
func IsHardwareError(err error) bool {
	var be *BridgeError
	return errors.Is(err, ErrHardwareTimeout) ||
		errors.Is(err, ErrHardwareUnreachable) ||
		errors.As(err, &be)
}

func (j Job) template() pow.Template {
	return pow.Template{
		PrevHash:    j.PrevHash,
		Version:     j.Version,
		NTime:       j.NTime,
		Bits:        j.Bits,
		Extranonce2: j.Extranonce2,
	}
}

package attest

import (
	"bytes"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/Davincible/siliconsig/pkg/imagefile"
	"github.com/Davincible/siliconsig/pkg/lsb"
	"github.com/Davincible/siliconsig/pkg/metrics"
	"github.com/Davincible/siliconsig/pkg/pow"
	"github.com/Davincible/siliconsig/pkg/signature"
)

// ReasonPoWFailed marks a recovered signature whose proof-of-work does not
// meet the target under any byte-order profile
const ReasonPoWFailed lsb.Reason = "pow_failed"

// Verifier checks images signed by a Signer
type Verifier struct {
	Extractor *lsb.Extractor
	PoW       *pow.Verifier

	// IgnoreMetadata forces a deep scan even when offsets are recorded
	IgnoreMetadata bool

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// Report is the outcome of a verification. Verdict and Reason are
// authoritative; the content and metadata flags are advisory.
type Report struct {
	Verdict    lsb.Verdict
	Reason     lsb.Reason
	Payload    *signature.Payload
	Extraction *lsb.Result

	PoW    *pow.Result
	PoWErr error

	// UsedMetadataOffsets is set when the recorded offsets produced the
	// extraction; otherwise the plane was deep scanned
	UsedMetadataOffsets bool

	// ContentIntact reports whether the LSB-masked pixels still hash to
	// the signed hash
	ContentIntact bool

	MetadataPresent bool
	MetadataAgrees  bool
}

// Authentic reports whether the verdict is VERIFIED or MARGINAL
func (r *Report) Authentic() bool {
	return r.Verdict == lsb.Verified || r.Verdict == lsb.Marginal
}

// Verify recovers the signature from buf and checks its proof of work. The
// metadata is only a hint: bad offsets fall back to a deep scan and a
// disagreeing copy never overrides the embedded one.
func (v *Verifier) Verify(buf *lsb.PixelBuffer, meta imagefile.Metadata) (*Report, error) {
	started := time.Now()
	rep, err := v.verify(buf, meta)
	v.Metrics.RecordOperation(metrics.OpVerify, err, time.Since(started).Seconds())
	if err == nil {
		recovered := 0
		if rep.Extraction != nil {
			recovered = rep.Extraction.Recovered
		}
		v.Metrics.RecordVerdict(string(rep.Verdict), string(rep.Reason), recovered)
		if rep.PoW != nil {
			v.Metrics.RecordCalibration(rep.PoW.Attempts)
		}
	}
	return rep, err
}

func (v *Verifier) verify(buf *lsb.PixelBuffer, meta imagefile.Metadata) (*Report, error) {
	if v.Extractor == nil {
		return nil, errors.New("attest: verifier needs an extractor")
	}
	if err := buf.Validate(); err != nil {
		return nil, err
	}

	rep := &Report{MetadataPresent: !meta.IsEmpty()}

	res, usedMeta, err := v.extract(buf, meta)
	if err != nil {
		return nil, err
	}
	rep.Extraction = res
	rep.UsedMetadataOffsets = usedMeta
	rep.Verdict, rep.Reason = res.Verdict, res.Reason

	if res.Verdict == lsb.Failed {
		v.logger().Debug("extraction failed", "reason", res.Reason, "recovered", res.Recovered)
		return rep, nil
	}
	rep.Payload = res.Payload

	proof, err := v.calibrate(*res.Payload, meta)
	if err != nil {
		rep.Verdict, rep.Reason = lsb.Failed, ReasonPoWFailed
		rep.PoWErr = err
		v.logger().Debug("proof of work rejected", "error", err)
		return rep, nil
	}
	rep.PoW = proof

	hash := signature.ContentHash(buf.Pix)
	rep.ContentIntact = hash == res.Payload.Hash

	if rep.MetadataPresent {
		if mp, err := meta.Payload(); err == nil {
			rep.MetadataAgrees = mp == *res.Payload
		}
	}

	v.logger().Debug("verification finished",
		"verdict", rep.Verdict,
		"reason", rep.Reason,
		"profile", proof.Profile.String(),
		"content_intact", rep.ContentIntact,
		"metadata_agrees", rep.MetadataAgrees)

	return rep, nil
}

func (v *Verifier) extract(buf *lsb.PixelBuffer, meta imagefile.Metadata) (*lsb.Result, bool, error) {
	if !v.IgnoreMetadata && len(meta.Offsets) > 0 {
		res, err := v.Extractor.Extract(buf, meta.Offsets)
		switch {
		case err != nil && !errors.Is(err, lsb.ErrInvalidOffset):
			return nil, false, err
		case err == nil && res.Verdict == lsb.Verified:
			return res, true, nil
		}
		v.logger().Debug("metadata offsets inconclusive, deep scanning", "offsets", meta.Offsets, "error", err)

		scan, scanErr := v.Extractor.Extract(buf, nil)
		if scanErr != nil {
			return nil, false, scanErr
		}
		// a partial offset list must not hide copies the scan can see
		if err == nil && res.Verdict != lsb.Failed && res.Recovered >= scan.Recovered {
			return res, true, nil
		}
		return scan, false, nil
	}

	res, err := v.Extractor.Extract(buf, nil)
	return res, false, err
}

// calibrate tries the recorded extranonce2 first, then the default
func (v *Verifier) calibrate(p signature.Payload, meta imagefile.Metadata) (*pow.Result, error) {
	base := pow.NewVerifier()
	if v.PoW != nil {
		base = v.PoW
	}

	candidates := [][]byte{base.Extranonce2}
	if en2, err := hex.DecodeString(meta.Extranonce2); err == nil && len(en2) > 0 {
		candidates = [][]byte{en2}
		if !bytes.Equal(en2, pow.DefaultExtranonce2) {
			candidates = append(candidates, base.Extranonce2)
		}
	}

	var lastErr error
	for _, en2 := range candidates {
		check := *base
		check.Extranonce2 = en2
		res, err := check.Calibrate(p)
		if err == nil {
			return &res, nil
		}
		lastErr = err
		if !errors.Is(err, pow.ErrNoValidByteOrder) {
			break
		}
	}
	return nil, lastErr
}

func (v *Verifier) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}

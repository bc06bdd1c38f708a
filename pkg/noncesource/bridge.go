package noncesource

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Davincible/siliconsig/pkg/signature"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// DefaultBridgeAddress is where the dual bridge listens
	DefaultBridgeAddress = "127.0.0.1:4000"

	DefaultBridgeTimeout    = 10 * time.Second
	DefaultBridgeRetries    = 2
	DefaultBridgeRetryDelay = 500 * time.Millisecond
)

// BridgeConfig configures a Bridge
type BridgeConfig struct {
	Address string

	// Timeout bounds each attempt, dial included
	Timeout time.Duration

	// Retries is the number of extra attempts after a transient failure
	Retries int

	// RetryDelay is the first backoff delay; it doubles per retry
	RetryDelay time.Duration

	// RatePerMinute caps job submissions; 0 disables the limit
	RatePerMinute int

	Logger *slog.Logger
}

// BridgeStats are session counters for a Bridge
type BridgeStats struct {
	Requests     int
	Solutions    int
	Failures     int
	Timeouts     int
	Retries      int
	TotalLatency time.Duration
	LastLatency  time.Duration
}

// AvgLatency returns the mean latency of successful requests
func (s BridgeStats) AvgLatency() time.Duration {
	if s.Solutions == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Solutions)
}

// Bridge submits jobs to the mining hardware over the bridge's JSON line
// protocol
type Bridge struct {
	cfg     BridgeConfig
	limiter *rate.Limiter
	dialer  net.Dialer

	mu    sync.Mutex
	stats BridgeStats
}

type bridgeRequest struct {
	ID   string `json:"id"`
	Data string `json:"data"`
}

type bridgeReply struct {
	JobID  string   `json:"job_id"`
	Nonce  string   `json:"nonce"`
	Params []string `json:"params"`
	Status string   `json:"status"`
	Error  string   `json:"error"`
}

// NewBridge fills in defaults for unset config fields
func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.Address == "" {
		cfg.Address = DefaultBridgeAddress
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultBridgeTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultBridgeRetryDelay
	}

	limit := rate.Inf
	if cfg.RatePerMinute > 0 {
		limit = rate.Limit(float64(cfg.RatePerMinute) / 60.0)
	}

	return &Bridge{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		dialer:  net.Dialer{Timeout: cfg.Timeout},
	}
}

// Name identifies the source in reports
func (b *Bridge) Name() string {
	return "bridge"
}

// Stats returns a snapshot of the session counters
func (b *Bridge) Stats() BridgeStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Ping checks that the bridge accepts connections
func (b *Bridge) Ping(ctx context.Context) error {
	conn, err := b.dialer.DialContext(ctx, "tcp", b.cfg.Address)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrHardwareUnreachable, b.cfg.Address, err)
	}
	return conn.Close()
}

// Acquire submits job and waits for the hardware's share. Timeouts and
// connection failures are retried with exponential backoff; errors the
// bridge reports are returned as *BridgeError without retrying.
func (b *Bridge) Acquire(ctx context.Context, job Job) (*Solution, error) {
	var lastErr error
	delay := b.cfg.RetryDelay

	for attempt := 0; attempt <= b.cfg.Retries; attempt++ {
		if attempt > 0 {
			b.record(func(s *BridgeStats) { s.Retries++ })
			b.logger().Debug("retrying bridge request",
				"attempt", attempt+1,
				"delay", delay,
				"error", lastErr)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if err := b.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		sol, err := b.submit(ctx, job)
		if err == nil {
			return sol, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) {
			break
		}
	}

	return nil, fmt.Errorf("bridge %s: %w", b.cfg.Address, lastErr)
}

func (b *Bridge) submit(ctx context.Context, job Job) (*Solution, error) {
	started := time.Now()
	b.record(func(s *BridgeStats) { s.Requests++ })

	sol, err := b.roundTrip(ctx, job)
	latency := time.Since(started)

	b.record(func(s *BridgeStats) {
		s.LastLatency = latency
		if err != nil {
			s.Failures++
			if errors.Is(err, ErrHardwareTimeout) {
				s.Timeouts++
			}
			return
		}
		s.Solutions++
		s.TotalLatency += latency
	})

	if err == nil {
		b.logger().Debug("bridge solution received",
			"job_id", sol.JobID,
			"nonce", fmt.Sprintf("%08x", sol.Nonce),
			"latency", latency)
	}
	return sol, err
}

func (b *Bridge) roundTrip(ctx context.Context, job Job) (*Solution, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	conn, err := b.dialer.DialContext(ctx, "tcp", b.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHardwareUnreachable, err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHardwareUnreachable, err)
	}

	req := bridgeRequest{
		ID:   uuid.NewString(),
		Data: hex.EncodeToString(job.PrevHash[:]),
	}
	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return nil, classify(err)
	}

	var reply bridgeReply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidReply, err)
		}
		return nil, classify(err)
	}

	if reply.Error != "" {
		return nil, &BridgeError{Message: reply.Error}
	}
	return reply.solution(job)
}

// solution reads the Stratum submit params:
// [worker, job_id, extranonce2, ntime, nonce, (version bits)]
func (r bridgeReply) solution(job Job) (*Solution, error) {
	sol := &Solution{
		JobID:       r.JobID,
		NTime:       job.NTime,
		Version:     job.Version,
		Extranonce2: job.Extranonce2,
		Source:      "bridge",
	}

	nonceHex := r.Nonce
	if len(r.Params) >= 5 {
		sol.Worker = r.Params[0]
		if sol.JobID == "" {
			sol.JobID = r.Params[1]
		}

		en2, err := hex.DecodeString(r.Params[2])
		if err != nil {
			return nil, fmt.Errorf("%w: extranonce2 %q", ErrInvalidReply, r.Params[2])
		}
		sol.Extranonce2 = en2

		if sol.NTime, err = signature.ParseWord(r.Params[3]); err != nil {
			return nil, fmt.Errorf("%w: ntime %q", ErrInvalidReply, r.Params[3])
		}
		nonceHex = r.Params[4]

		if len(r.Params) > 5 && r.Params[5] != "" {
			bits, err := strconv.ParseUint(strings.TrimPrefix(r.Params[5], "0x"), 16, 32)
			if err != nil {
				return nil, fmt.Errorf("%w: version bits %q", ErrInvalidReply, r.Params[5])
			}
			sol.Version = job.Version | uint32(bits)
		}
	}

	if nonceHex == "" {
		return nil, fmt.Errorf("%w: no nonce", ErrInvalidReply)
	}
	nonce, err := signature.ParseWord(nonceHex)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce %q", ErrInvalidReply, nonceHex)
	}
	sol.Nonce = nonce
	return sol, nil
}

func classify(err error) error {
	var ne net.Error
	switch {
	case errors.As(err, &ne) && ne.Timeout(), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrHardwareTimeout, err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: connection closed without reply", ErrHardwareUnreachable)
	default:
		return fmt.Errorf("%w: %v", ErrHardwareUnreachable, err)
	}
}

func retryable(err error) bool {
	return errors.Is(err, ErrHardwareTimeout) || errors.Is(err, ErrHardwareUnreachable)
}

func (b *Bridge) record(fn func(*BridgeStats)) {
	b.mu.Lock()
	fn(&b.stats)
	b.mu.Unlock()
}

func (b *Bridge) logger() *slog.Logger {
	if b.cfg.Logger != nil {
		return b.cfg.Logger
	}
	return slog.Default()
}

package noncesource

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Davincible/siliconsig/pkg/pow"
	"github.com/Davincible/siliconsig/pkg/signature"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const easyBits uint32 = 0x1f00ffff

func testJob() Job {
	var prev [32]byte
	for i := range prev {
		prev[i] = byte(i * 7)
	}
	return Job{
		PrevHash: prev,
		Version:  0x20000000,
		NTime:    0x5F000000,
		Bits:     easyBits,
	}
}

// fakeBridge answers each connection with the reply built by respond. A nil
// reply closes the connection without answering; a negative delay never
// answers.
type fakeBridge struct {
	ln       net.Listener
	requests atomic.Int32
	lastReq  atomic.Value
}

func startFakeBridge(t *testing.T, respond func(n int, req bridgeRequest) (any, time.Duration)) *fakeBridge {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fb := &fakeBridge{ln: ln}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				line, err := bufio.NewReader(conn).ReadBytes('\n')
				if err != nil {
					return
				}
				var req bridgeRequest
				if err := json.Unmarshal(line, &req); err != nil {
					return
				}
				fb.lastReq.Store(req)
				n := int(fb.requests.Add(1))

				reply, delay := respond(n, req)
				if delay < 0 {
					time.Sleep(2 * time.Second)
					return
				}
				time.Sleep(delay)
				if reply == nil {
					return
				}
				out, _ := json.Marshal(reply)
				conn.Write(append(out, '\n'))
			}(conn)
		}
	}()
	return fb
}

func (f *fakeBridge) addr() string {
	return f.ln.Addr().String()
}

func quickBridge(addr string) *Bridge {
	return NewBridge(BridgeConfig{
		Address:    addr,
		Timeout:    200 * time.Millisecond,
		Retries:    2,
		RetryDelay: 10 * time.Millisecond,
	})
}

func TestBridgeAcquire(t *testing.T) {
	fb := startFakeBridge(t, func(n int, req bridgeRequest) (any, time.Duration) {
		return map[string]any{
			"job_id": "job-7",
			"nonce":  "deadbeef",
			"params": []string{"s9.worker", "job-7", "00000001", "5f000010", "1a2b3c4d"},
			"status": "accepted",
		}, 0
	})

	b := quickBridge(fb.addr())
	job := testJob()
	sol, err := b.Acquire(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, "job-7", sol.JobID)
	assert.Equal(t, "s9.worker", sol.Worker)
	assert.Equal(t, uint32(0x1a2b3c4d), sol.Nonce, "params win over the top-level nonce")
	assert.Equal(t, uint32(0x5f000010), sol.NTime)
	assert.Equal(t, job.Version, sol.Version)
	assert.Equal(t, []byte{0, 0, 0, 1}, sol.Extranonce2)
	assert.Equal(t, "00000001", sol.Extranonce2Hex())

	req := fb.lastReq.Load().(bridgeRequest)
	assert.Equal(t, hex.EncodeToString(job.PrevHash[:]), req.Data)
	_, err = uuid.Parse(req.ID)
	assert.NoError(t, err)

	stats := b.Stats()
	assert.Equal(t, 1, stats.Requests)
	assert.Equal(t, 1, stats.Solutions)
	assert.Equal(t, 0, stats.Failures)
	assert.Greater(t, stats.AvgLatency(), time.Duration(0))
}

func TestBridgeReplyVariants(t *testing.T) {
	tests := []struct {
		name    string
		reply   map[string]any
		check   func(t *testing.T, sol *Solution)
		wantErr error
	}{
		{
			name:  "Top-level nonce only",
			reply: map[string]any{"job_id": "j", "nonce": "0x10"},
			check: func(t *testing.T, sol *Solution) {
				assert.Equal(t, uint32(0x10), sol.Nonce)
				assert.Equal(t, uint32(0x5F000000), sol.NTime)
			},
		},
		{
			name:  "Version rolling",
			reply: map[string]any{"params": []string{"w", "j2", "00000000", "5f000000", "00000001", "00400000"}},
			check: func(t *testing.T, sol *Solution) {
				assert.Equal(t, "j2", sol.JobID)
				assert.Equal(t, uint32(0x20400000), sol.Version)
			},
		},
		{
			name:    "Missing nonce",
			reply:   map[string]any{"job_id": "j"},
			wantErr: ErrInvalidReply,
		},
		{
			name:    "Bad extranonce2",
			reply:   map[string]any{"params": []string{"w", "j", "zz", "5f000000", "00000001"}},
			wantErr: ErrInvalidReply,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := startFakeBridge(t, func(int, bridgeRequest) (any, time.Duration) {
				return tt.reply, 0
			})
			sol, err := quickBridge(fb.addr()).Acquire(context.Background(), testJob())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, int32(1), fb.requests.Load(), "invalid replies are not retried")
				return
			}
			require.NoError(t, err)
			tt.check(t, sol)
		})
	}
}

func TestBridgeReportedError(t *testing.T) {
	fb := startFakeBridge(t, func(int, bridgeRequest) (any, time.Duration) {
		return map[string]any{"error": "no miner connected"}, 0
	})

	_, err := quickBridge(fb.addr()).Acquire(context.Background(), testJob())
	require.Error(t, err)

	var be *BridgeError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "no miner connected", be.Message)
	assert.True(t, IsHardwareError(err))
	assert.Equal(t, int32(1), fb.requests.Load())
}

func TestBridgeTimeout(t *testing.T) {
	fb := startFakeBridge(t, func(int, bridgeRequest) (any, time.Duration) {
		return nil, -1
	})

	b := quickBridge(fb.addr())
	_, err := b.Acquire(context.Background(), testJob())
	assert.ErrorIs(t, err, ErrHardwareTimeout)
	assert.True(t, IsHardwareError(err))

	stats := b.Stats()
	assert.Equal(t, 3, stats.Requests)
	assert.Equal(t, 3, stats.Timeouts)
	assert.Equal(t, 2, stats.Retries)
	assert.Equal(t, 0, stats.Solutions)
}

func TestBridgeRetriesDroppedConnection(t *testing.T) {
	fb := startFakeBridge(t, func(n int, req bridgeRequest) (any, time.Duration) {
		if n == 1 {
			return nil, 0
		}
		return map[string]any{"job_id": "j", "nonce": "00000042"}, 0
	})

	b := quickBridge(fb.addr())
	sol, err := b.Acquire(context.Background(), testJob())
	require.NoError(t, err)
	assert.Equal(t, uint32(0x42), sol.Nonce)
	assert.Equal(t, int32(2), fb.requests.Load())
	assert.Equal(t, 1, b.Stats().Retries)
	assert.Equal(t, 1, b.Stats().Failures)
}

func TestBridgeUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	b := quickBridge(addr)
	_, err = b.Acquire(context.Background(), testJob())
	assert.ErrorIs(t, err, ErrHardwareUnreachable)
	assert.ErrorIs(t, b.Ping(context.Background()), ErrHardwareUnreachable)
}

func TestBridgePing(t *testing.T) {
	fb := startFakeBridge(t, func(int, bridgeRequest) (any, time.Duration) { return nil, 0 })
	assert.NoError(t, quickBridge(fb.addr()).Ping(context.Background()))
}

func TestBridgeHonoursContext(t *testing.T) {
	fb := startFakeBridge(t, func(int, bridgeRequest) (any, time.Duration) { return nil, -1 })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	b := NewBridge(BridgeConfig{Address: fb.addr(), Timeout: time.Second, Retries: 5})
	started := time.Now()
	_, err := b.Acquire(ctx, testJob())
	assert.Error(t, err)
	assert.Less(t, time.Since(started), time.Second)
}

func TestBridgeRateLimit(t *testing.T) {
	fb := startFakeBridge(t, func(int, bridgeRequest) (any, time.Duration) {
		return map[string]any{"nonce": "00000001"}, 0
	})

	b := NewBridge(BridgeConfig{Address: fb.addr(), Timeout: time.Second, RatePerMinute: 60})
	_, err := b.Acquire(context.Background(), testJob())
	require.NoError(t, err)

	// the second request has to wait about a second for a token
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = b.Acquire(ctx, testJob())
	assert.Error(t, err)
	assert.Equal(t, int32(1), fb.requests.Load())
}

func TestSimulatedAcquire(t *testing.T) {
	tests := []struct {
		name    string
		hasher  pow.Hasher
		profile pow.Profile
	}{
		{"Canonical", pow.SHA256, pow.Canonical},
		{"Little endian words", pow.SHA256, pow.Profile{Version: pow.LittleEndian, NTime: pow.LittleEndian, Nonce: pow.LittleEndian}},
		{"BLAKE2b", pow.BLAKE2b, pow.Profile{PrevHash: pow.WordSwapped}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &Simulated{Hasher: tt.hasher, Profile: tt.profile}
			job := testJob()

			sol, err := src.Acquire(context.Background(), job)
			require.NoError(t, err)
			assert.Equal(t, "simulated", sol.Source)
			assert.NotEmpty(t, sol.JobID)
			assert.Equal(t, pow.DefaultExtranonce2, sol.Extranonce2)

			p, err := signature.New(job.PrevHash, sol.Nonce, sol.NTime, sol.Version, "SIM")
			require.NoError(t, err)

			v := &pow.Verifier{Bits: easyBits, Hasher: tt.hasher, Extranonce2: sol.Extranonce2}
			_, ok, err := v.Verify(p, tt.profile)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestSimulatedStampsTime(t *testing.T) {
	fixed := time.Unix(0x60000000, 0)
	src := &Simulated{Now: func() time.Time { return fixed }}

	job := testJob()
	job.NTime = 0
	sol, err := src.Acquire(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x60000000), sol.NTime)
}

func TestSimulatedCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := testJob()
	job.Bits = pow.DefaultBits
	_, err := NewSimulated().Acquire(ctx, job)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsHardwareError(err))
}

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/you/civicauth/domain"
)

// TestVerifyConcurrency races the correct code against one sid; exactly one
// caller may be issued tokens.
func TestVerifyConcurrency(t *testing.T) {
	f := newFlowFixture(t)
	ctx := createTestContext(t)

	challenge, err := f.flow.RequestOTP(ctx, "48999991234")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	code := f.lastCode(t)

	const concurrency = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	start := make(chan struct{})
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			result, err := f.flow.Verify(ctx, challenge.SID, code)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && result != nil:
				successes++
			case errors.Is(err, domain.ErrSIDExpired), errors.Is(err, domain.ErrOTPExpired):
				rejected++
			default:
				t.Errorf("unexpected result: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 {
		t.Errorf("expected exactly one success, got %d", successes)
	}
	if rejected != concurrency-1 {
		t.Errorf("expected %d rejections, got %d", concurrency-1, rejected)
	}
	if issued := len(f.audit.Events(domain.SessionIssuedEvent)); issued != 1 {
		t.Errorf("expected one issued session, got %d", issued)
	}
}

// TestRequestOTPConcurrency requests codes for many phones at once and for
// one phone many times; the cooldown lets a single request per phone through.
func TestRequestOTPConcurrency(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load test in short mode")
	}

	f := newFlowFixture(t)
	const phones = 20
	const perPhone = 5

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		created     = map[string]int{}
		rateLimited int
	)
	for p := 0; p < phones; p++ {
		phone := fmt.Sprintf("4899999%04d", p)
		for i := 0; i < perPhone; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_, err := f.flow.RequestOTP(ctx, phone)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					created[phone]++
				case errors.Is(err, domain.ErrRateLimited):
					rateLimited++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
	}
	wg.Wait()

	if len(created) != phones {
		t.Errorf("expected every phone to get a code, got %d", len(created))
	}
	for phone, n := range created {
		if n != 1 {
			t.Errorf("phone %s: expected one session, got %d", phone, n)
		}
	}
	if rateLimited != phones*(perPhone-1) {
		t.Errorf("expected %d rate limited requests, got %d", phones*(perPhone-1), rateLimited)
	}
	if sent := len(f.gateway.Sent()); sent != phones {
		t.Errorf("expected %d deliveries, got %d", phones, sent)
	}
}

func BenchmarkRequestOTP(b *testing.B) {
	f := newFlowFixture(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Every iteration uses a fresh phone so the cooldown never applies.
		phone := fmt.Sprintf("489%08d", i%100000000)
		if _, err := f.flow.RequestOTP(ctx, phone); err != nil {
			b.Fatal(err)
		}
	}
}

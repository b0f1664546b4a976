package matching

import (
	"strconv"
	"sync"
	"testing"

	"bitbucket.org/mmdatafocus/reconcile_backend/models"
)

// NOTE: These tests are intentionally DB-free. They validate the intended
// review-queue semantics:
// - a claim race has exactly one winner (models ClaimQueueItem is a
//   conditional UPDATE on status=pending)
// - terminal items never move again
// - duplicate shipment delivery inside one job runs the match handler
//   once, while a later job re-examines the same shipment (models
//   IdempotencyKey, keyed customer|handler|job:shipment)
//
// Full DB integration tests need an environment that can run MySQL.

type fakeQueue struct {
	mu     sync.Mutex
	status map[int]models.HitlStatus
	owner  map[int]string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		status: map[int]models.HitlStatus{},
		owner:  map[int]string{},
	}
}

func (q *fakeQueue) add(id int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.status[id] = models.HitlStatusPending
}

// claim mirrors the conditional pending -> in_review transition.
func (q *fakeQueue) claim(id int, reviewer string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.status[id] != models.HitlStatusPending {
		return models.ErrAlreadyClaimed
	}
	q.status[id] = models.HitlStatusInReview
	q.owner[id] = reviewer
	return nil
}

// resolve mirrors the conditional in_review -> terminal transition.
func (q *fakeQueue) resolve(id int, terminal models.HitlStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if models.IsTerminalHitlStatus(q.status[id]) {
		return models.ErrTerminalQueueItem
	}
	if q.status[id] != models.HitlStatusInReview {
		return ErrItemNotClaimed
	}
	q.status[id] = terminal
	return nil
}

func TestClaimRace_ExactlyOneWinner(t *testing.T) {
	for run := 0; run < 100; run++ {
		q := newFakeQueue()
		q.add(1)

		var wg sync.WaitGroup
		var mu sync.Mutex
		winners := 0
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if err := q.claim(1, "reviewer"); err == nil {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		if winners != 1 {
			t.Fatalf("run=%d expected exactly 1 claim winner, got %d", run, winners)
		}
	}
}

func TestTerminalItem_IsImmutable(t *testing.T) {
	q := newFakeQueue()
	q.add(1)
	if err := q.claim(1, "reviewer"); err != nil {
		t.Fatal(err)
	}
	if err := q.resolve(1, models.HitlStatusApproved); err != nil {
		t.Fatal(err)
	}

	if err := q.resolve(1, models.HitlStatusRejected); err != models.ErrTerminalQueueItem {
		t.Fatalf("expected ErrTerminalQueueItem, got %v", err)
	}
	if err := q.claim(1, "other"); err != models.ErrAlreadyClaimed {
		t.Fatalf("reclaiming a terminal item must fail, got %v", err)
	}
}

func TestResolveUnclaimedItem_Fails(t *testing.T) {
	q := newFakeQueue()
	q.add(1)
	if err := q.resolve(1, models.HitlStatusApproved); err != ErrItemNotClaimed {
		t.Fatalf("expected ErrItemNotClaimed, got %v", err)
	}
}

func TestIsTerminalHitlStatus(t *testing.T) {
	terminal := []models.HitlStatus{models.HitlStatusApproved, models.HitlStatusRejected, models.HitlStatusModified}
	for _, s := range terminal {
		if !models.IsTerminalHitlStatus(s) {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []models.HitlStatus{models.HitlStatusPending, models.HitlStatusInReview} {
		if models.IsTerminalHitlStatus(s) {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

type fakeShipmentRunner struct {
	mu    sync.Mutex
	seen  map[string]bool
	calls int
}

func (r *fakeShipmentRunner) process(customer string, jobID, shipmentID int, fn func()) {
	// Deduplicate inside the job (models IdempotencyKey).
	key := customer + "|" + shipmentHandlerName + "|" + strconv.Itoa(jobID) + ":" + strconv.Itoa(shipmentID)
	r.mu.Lock()
	if r.seen == nil {
		r.seen = map[string]bool{}
	}
	if r.seen[key] {
		r.mu.Unlock()
		return
	}
	r.seen[key] = true
	r.mu.Unlock()

	fn()

	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
}

func TestDuplicateShipmentDelivery_IsProcessedOnce(t *testing.T) {
	r := &fakeShipmentRunner{}

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.process("ACME", 1, 42, func() {})
		}()
	}
	wg.Wait()

	if r.calls != 1 {
		t.Fatalf("expected exactly 1 processing call, got %d", r.calls)
	}
}

func TestUnresolvedShipment_IsReexaminedByLaterJob(t *testing.T) {
	// The dedupe key is scoped to one job: a shipment that stayed
	// uncertain must not be fenced off from the next run, where a new
	// mapping or a review decision can change its outcome.
	r := &fakeShipmentRunner{}

	r.process("ACME", 1, 42, func() {})
	r.process("ACME", 1, 42, func() {})
	r.process("ACME", 2, 42, func() {})

	if r.calls != 2 {
		t.Fatalf("expected one call per job, got %d", r.calls)
	}
}

// Package ledger keeps an account's cached balance consistent with its
// entry log. All balance-changing operations funnel through one commit
// path that serializes writers per account and verifies the account
// version in the store.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"saldo/internal/core"
	"saldo/internal/events"
	"saldo/internal/log"
)

const (
	DefaultMaxRetries   = 5
	defaultRetryBackoff = 5 * time.Millisecond
	compensateTimeout   = 5 * time.Second
	reconcileTimeout    = 30 * time.Second
)

// Limiter decides whether a keyed write may proceed.
type Limiter interface {
	Allow(key string) bool
}

// Sealer encrypts sensitive fields before they reach the store.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(ciphertext string) (string, error)
}

type Options struct {
	// MaxRetries bounds how often a commit is re-planned after a version
	// conflict before core.ErrConflict is returned.
	MaxRetries   int
	RetryBackoff time.Duration
	Limiter      Limiter
	Sealer       Sealer
	Publisher    events.Publisher
	Logger       *log.Logger
	Now          func() time.Time
	NewID        func() string
}

type Service struct {
	store Store
	tx    TxStore

	maxRetries   int
	retryBackoff time.Duration
	limiter      Limiter
	sealer       Sealer
	publisher    events.Publisher
	logger       *log.Logger
	structured   *log.StructuredLogger
	now          func() time.Time
	newID        func() string

	locks   map[string]*sync.Mutex
	locksMu sync.Mutex

	reconciles singleflight.Group
}

// New builds a Service. Stores implementing TxStore get atomic commits;
// others use the compensating split path.
func New(store Store, opts Options) *Service {
	s := &Service{
		store:        store,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		limiter:      opts.Limiter,
		sealer:       opts.Sealer,
		publisher:    opts.Publisher,
		logger:       opts.Logger,
		now:          opts.Now,
		newID:        opts.NewID,
		locks:        make(map[string]*sync.Mutex),
	}
	if tx, ok := store.(TxStore); ok {
		s.tx = tx
	}
	if s.maxRetries <= 0 {
		s.maxRetries = DefaultMaxRetries
	}
	if s.retryBackoff <= 0 {
		s.retryBackoff = defaultRetryBackoff
	}
	if s.publisher == nil {
		s.publisher = events.Nop{}
	}
	if s.logger == nil {
		s.logger = log.New(log.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(log.ComponentLedger)
	s.structured = log.NewStructuredLogger(s.logger)
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s
}

func (s *Service) accountLock(accountID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	mu, ok := s.locks[accountID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[accountID] = mu
	}
	return mu
}

func (s *Service) allow(accountID, op string) bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.Allow(accountID + ":tx:" + op)
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func (s *Service) seal(plaintext string) (string, error) {
	if s.sealer == nil {
		return "", nil
	}
	return s.sealer.Seal(plaintext)
}

// reveal fills in the plaintext description of entries whose stored
// row only carries the ciphertext.
func (s *Service) reveal(ctx context.Context, e *core.Entry) {
	if e.Description != "" || e.DescriptionEnc == "" || s.sealer == nil {
		return
	}
	plain, err := s.sealer.Open(e.DescriptionEnc)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to decrypt description",
			log.FieldEntryID, e.ID, log.FieldError, err)
		return
	}
	e.Description = plain
}

func (s *Service) publish(ctx context.Context, e events.LedgerEvent) {
	if err := s.publisher.PublishLedgerEvent(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ledger event",
			"type", e.Type, log.FieldAccountID, e.AccountID, log.FieldError, err)
	}
}

func (s *Service) requestReconcile(ctx context.Context, accountID, reason string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.publisher.PublishReconcileRequest(ctx, events.NewReconcileRequest(accountID, reason)); err != nil {
		s.logger.ErrorContext(ctx, "Failed to request reconciliation",
			log.FieldAccountID, accountID, log.FieldError, err)
	}
}

func requireAccount(accountID string) error {
	if accountID == "" {
		return core.ErrUnauthorized
	}
	return nil
}

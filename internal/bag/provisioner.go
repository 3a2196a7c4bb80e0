package bag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dhanbg/traditionalalley-sub002/internal/remote"
	apperrors "github.com/dhanbg/traditionalalley-sub002/pkg/errors"
)

// Store is the subset of the line-item store the provisioner needs.
type Store interface {
	FindBagByUser(ctx context.Context, externalUserID string) (*remote.BagRecord, error)
	FindProfileByExternalID(ctx context.Context, externalUserID string) (*remote.ProfileRecord, error)
	CreateProfile(ctx context.Context, externalUserID string) (*remote.ProfileRecord, error)
	CreateBag(ctx context.Context, profileDocumentID string) (*remote.BagRecord, error)
}

// Provisioner resolves the remote bag for a user, creating the profile and
// bag on first contact. The resolved bag is cached per user, so the remote
// lookup happens once per process lifetime per user.
type Provisioner struct {
	store  Store
	logger *slog.Logger

	mu    sync.Mutex
	bags  map[string]*remote.BagRecord
	locks map[string]*sync.Mutex
}

// NewProvisioner creates a bag provisioner.
func NewProvisioner(store Store, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		store:  store,
		logger: logger,
		bags:   make(map[string]*remote.BagRecord),
		locks:  make(map[string]*sync.Mutex),
	}
}

// userLock returns the per-user mutex, creating it on first use. Serializing
// per user keeps concurrent sync operations from racing two bag creations
// without a distributed lock.
func (p *Provisioner) userLock(userID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		p.locks[userID] = l
	}
	return l
}

// EnsureBag returns the user's bag, looking it up remotely and creating the
// profile and bag when the user has neither.
func (p *Provisioner) EnsureBag(ctx context.Context, userID string) (*remote.BagRecord, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}

	p.mu.Lock()
	if bag, ok := p.bags[userID]; ok {
		p.mu.Unlock()
		return bag, nil
	}
	p.mu.Unlock()

	lock := p.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	// Re-check after acquiring the user lock; a concurrent caller may have
	// provisioned while we waited.
	p.mu.Lock()
	if bag, ok := p.bags[userID]; ok {
		p.mu.Unlock()
		return bag, nil
	}
	p.mu.Unlock()

	bag, err := p.provision(ctx, userID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.bags[userID] = bag
	p.mu.Unlock()
	return bag, nil
}

func (p *Provisioner) provision(ctx context.Context, userID string) (*remote.BagRecord, error) {
	bag, err := p.store.FindBagByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find bag: %w", err)
	}
	if bag != nil {
		return bag, nil
	}

	profile, err := p.ensureProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	bag, err = p.store.CreateBag(ctx, profile.DocumentID)
	if err != nil {
		// Another session may have created the bag between our lookup and
		// create. Treat a conflict as "already exists" and re-read.
		if errors.Is(err, apperrors.ErrConflict) {
			if existing, lookupErr := p.store.FindBagByUser(ctx, userID); lookupErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("create bag: %w", err)
	}

	p.logger.InfoContext(ctx, "bag provisioned",
		slog.String("user_id", userID),
		slog.String("bag_document_id", bag.DocumentID),
	)
	return bag, nil
}

func (p *Provisioner) ensureProfile(ctx context.Context, userID string) (*remote.ProfileRecord, error) {
	profile, err := p.store.FindProfileByExternalID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	if profile != nil {
		return profile, nil
	}

	profile, err = p.store.CreateProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			if existing, lookupErr := p.store.FindProfileByExternalID(ctx, userID); lookupErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("create profile: %w", err)
	}
	return profile, nil
}

// Invalidate drops the cached bag for a user, forcing the next EnsureBag to
// hit the remote store again.
func (p *Provisioner) Invalidate(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.bags, userID)
}

package bag

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dhanbg/traditionalalley-sub002/internal/remote"
	apperrors "github.com/dhanbg/traditionalalley-sub002/pkg/errors"
)

// --- Mock Store ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindBagByUser(ctx context.Context, externalUserID string) (*remote.BagRecord, error) {
	args := m.Called(ctx, externalUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*remote.BagRecord), args.Error(1)
}

func (m *mockStore) FindProfileByExternalID(ctx context.Context, externalUserID string) (*remote.ProfileRecord, error) {
	args := m.Called(ctx, externalUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*remote.ProfileRecord), args.Error(1)
}

func (m *mockStore) CreateProfile(ctx context.Context, externalUserID string) (*remote.ProfileRecord, error) {
	args := m.Called(ctx, externalUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*remote.ProfileRecord), args.Error(1)
}

func (m *mockStore) CreateBag(ctx context.Context, profileDocumentID string) (*remote.BagRecord, error) {
	args := m.Called(ctx, profileDocumentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*remote.BagRecord), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestProvisioner_EnsureBag_ExistingBag(t *testing.T) {
	store := new(mockStore)
	store.On("FindBagByUser", mock.Anything, "user-1").
		Return(&remote.BagRecord{ID: 1, DocumentID: "bag-doc-1"}, nil).Once()
	p := NewProvisioner(store, testLogger())

	bag, err := p.EnsureBag(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, "bag-doc-1", bag.DocumentID)
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "CreateBag", mock.Anything, mock.Anything)
}

func TestProvisioner_EnsureBag_CachesPerUser(t *testing.T) {
	store := new(mockStore)
	store.On("FindBagByUser", mock.Anything, "user-1").
		Return(&remote.BagRecord{ID: 1, DocumentID: "bag-doc-1"}, nil).Once()
	p := NewProvisioner(store, testLogger())

	_, err := p.EnsureBag(context.Background(), "user-1")
	require.NoError(t, err)
	_, err = p.EnsureBag(context.Background(), "user-1")
	require.NoError(t, err)

	store.AssertNumberOfCalls(t, "FindBagByUser", 1)
}

func TestProvisioner_EnsureBag_CreatesProfileAndBag(t *testing.T) {
	store := new(mockStore)
	store.On("FindBagByUser", mock.Anything, "user-1").Return(nil, nil).Once()
	store.On("FindProfileByExternalID", mock.Anything, "user-1").Return(nil, nil).Once()
	store.On("CreateProfile", mock.Anything, "user-1").
		Return(&remote.ProfileRecord{ID: 9, DocumentID: "prof-doc-9", ExternalID: "user-1"}, nil).Once()
	store.On("CreateBag", mock.Anything, "prof-doc-9").
		Return(&remote.BagRecord{ID: 1, DocumentID: "bag-doc-1"}, nil).Once()
	p := NewProvisioner(store, testLogger())

	bag, err := p.EnsureBag(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, "bag-doc-1", bag.DocumentID)
	store.AssertExpectations(t)
}

func TestProvisioner_EnsureBag_ExistingProfileNewBag(t *testing.T) {
	store := new(mockStore)
	store.On("FindBagByUser", mock.Anything, "user-1").Return(nil, nil).Once()
	store.On("FindProfileByExternalID", mock.Anything, "user-1").
		Return(&remote.ProfileRecord{ID: 9, DocumentID: "prof-doc-9"}, nil).Once()
	store.On("CreateBag", mock.Anything, "prof-doc-9").
		Return(&remote.BagRecord{ID: 1, DocumentID: "bag-doc-1"}, nil).Once()
	p := NewProvisioner(store, testLogger())

	_, err := p.EnsureBag(context.Background(), "user-1")

	require.NoError(t, err)
	store.AssertNotCalled(t, "CreateProfile", mock.Anything, mock.Anything)
}

func TestProvisioner_EnsureBag_CreateConflictRereads(t *testing.T) {
	store := new(mockStore)
	store.On("FindBagByUser", mock.Anything, "user-1").Return(nil, nil).Once()
	store.On("FindProfileByExternalID", mock.Anything, "user-1").
		Return(&remote.ProfileRecord{ID: 9, DocumentID: "prof-doc-9"}, nil).Once()
	store.On("CreateBag", mock.Anything, "prof-doc-9").
		Return(nil, apperrors.Conflict("bag already exists")).Once()
	store.On("FindBagByUser", mock.Anything, "user-1").
		Return(&remote.BagRecord{ID: 1, DocumentID: "bag-doc-other"}, nil).Once()
	p := NewProvisioner(store, testLogger())

	bag, err := p.EnsureBag(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, "bag-doc-other", bag.DocumentID)
}

func TestProvisioner_EnsureBag_LookupError(t *testing.T) {
	store := new(mockStore)
	store.On("FindBagByUser", mock.Anything, "user-1").
		Return(nil, apperrors.Transient("line-item store unavailable"))
	p := NewProvisioner(store, testLogger())

	_, err := p.EnsureBag(context.Background(), "user-1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTransient))
}

func TestProvisioner_EnsureBag_EmptyUser(t *testing.T) {
	p := NewProvisioner(new(mockStore), testLogger())

	_, err := p.EnsureBag(context.Background(), "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestProvisioner_EnsureBag_ConcurrentSingleProvision(t *testing.T) {
	store := new(mockStore)
	store.On("FindBagByUser", mock.Anything, "user-1").
		Return(&remote.BagRecord{ID: 1, DocumentID: "bag-doc-1"}, nil).Once()
	p := NewProvisioner(store, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.EnsureBag(context.Background(), "user-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	store.AssertNumberOfCalls(t, "FindBagByUser", 1)
}

func TestProvisioner_Invalidate(t *testing.T) {
	store := new(mockStore)
	store.On("FindBagByUser", mock.Anything, "user-1").
		Return(&remote.BagRecord{ID: 1, DocumentID: "bag-doc-1"}, nil).Twice()
	p := NewProvisioner(store, testLogger())

	_, err := p.EnsureBag(context.Background(), "user-1")
	require.NoError(t, err)

	p.Invalidate("user-1")

	_, err = p.EnsureBag(context.Background(), "user-1")
	require.NoError(t, err)
	store.AssertNumberOfCalls(t, "FindBagByUser", 2)
}

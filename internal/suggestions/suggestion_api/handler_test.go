package suggestion_api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-speakers/internal/auth"
	"ms-speakers/internal/logger"
	"ms-speakers/internal/models"
	suggestions "ms-speakers/internal/suggestions/service"
)

type MockSuggestionService struct {
	mock.Mock
}

func (m *MockSuggestionService) List(ctx context.Context) ([]models.Suggestion, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Suggestion), args.Error(1)
}

func (m *MockSuggestionService) Submit(ctx context.Context, id auth.Identity, speaker string) (*models.Suggestion, error) {
	args := m.Called(ctx, id, speaker)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Suggestion), args.Error(1)
}

func (m *MockSuggestionService) Vote(ctx context.Context, id auth.Identity, suggestionID int64) error {
	return m.Called(ctx, id, suggestionID).Error(0)
}

func (m *MockSuggestionService) Unvote(ctx context.Context, id auth.Identity, suggestionID int64) error {
	return m.Called(ctx, id, suggestionID).Error(0)
}

func (m *MockSuggestionService) Review(ctx context.Context, suggestionID int64, approved bool) (*models.Suggestion, error) {
	args := m.Called(ctx, suggestionID, approved)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Suggestion), args.Error(1)
}

func (m *MockSuggestionService) Duplicates(ctx context.Context) ([]suggestions.DuplicateCandidate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]suggestions.DuplicateCandidate), args.Error(1)
}

func (m *MockSuggestionService) Merge(ctx context.Context, sourceID, targetID int64) ([]models.Suggestion, error) {
	args := m.Called(ctx, sourceID, targetID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Suggestion), args.Error(1)
}

var alice = auth.NewIdentity("u-alice", "alice@stanford.edu")

func newRouter(svc SuggestionService, admin func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), alice)))
		})
	})
	NewHandler(svc, logger.NewNop()).RegisterRoutes(r, admin)
	return r
}

func allow(next http.Handler) http.Handler { return next }

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestMergeHandler(t *testing.T) {
	svc := new(MockSuggestionService)
	svc.On("Merge", mock.Anything, int64(3), int64(1)).Return([]models.Suggestion{
		{ID: 1, Speaker: "Grace Hopper", Approved: true, VoteCount: 2},
		{ID: 3, Speaker: "Hopper", Reviewed: true, Duplicate: true},
	}, nil).Once()

	w := do(newRouter(svc, allow), http.MethodPut, "/admin/suggestions/merge", `{"sourceId":3,"targetId":1}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"duplicate":true`)
	svc.AssertExpectations(t)
}

func TestMergeHandler_PreconditionReasonVerbatim(t *testing.T) {
	svc := new(MockSuggestionService)
	svc.On("Merge", mock.Anything, int64(3), int64(1)).
		Return(nil, &suggestions.PreconditionError{Reason: "target suggestion 1 is not approved"}).Once()

	w := do(newRouter(svc, allow), http.MethodPut, "/admin/suggestions/merge", `{"sourceId":3,"targetId":1}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"message":"target suggestion 1 is not approved"`)
}

func TestMergeHandler_StoreErrorDetailForAdmins(t *testing.T) {
	svc := new(MockSuggestionService)
	svc.On("Merge", mock.Anything, int64(3), int64(1)).
		Return(nil, errors.New("transfer votes: deadlock detected")).Once()

	w := do(newRouter(svc, allow), http.MethodPut, "/admin/suggestions/merge", `{"sourceId":3,"targetId":1}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "deadlock detected")
}

func TestMergeHandler_InProgress(t *testing.T) {
	svc := new(MockSuggestionService)
	svc.On("Merge", mock.Anything, int64(3), int64(1)).Return(nil, suggestions.ErrMergeInProgress).Once()

	w := do(newRouter(svc, allow), http.MethodPut, "/admin/suggestions/merge", `{"sourceId":3,"targetId":1}`)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMergeHandler_RequiresAdmin(t *testing.T) {
	svc := new(MockSuggestionService)
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
	}

	w := do(newRouter(svc, deny), http.MethodPut, "/admin/suggestions/merge", `{"sourceId":3,"targetId":1}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
	svc.AssertNotCalled(t, "Merge", mock.Anything, mock.Anything, mock.Anything)
}

func TestVoteHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"ok", nil, http.StatusOK},
		{"already voted", suggestions.ErrAlreadyVoted, http.StatusConflict},
		{"merged", suggestions.ErrSuggestionClosed, http.StatusConflict},
		{"missing", suggestions.ErrSuggestionNotFound, http.StatusNotFound},
		{"store", errors.New("pq: connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSuggestionService)
			svc.On("Vote", mock.Anything, alice, int64(7)).Return(tt.err).Once()

			w := do(newRouter(svc, allow), http.MethodPost, "/suggestions/7/vote", "")

			assert.Equal(t, tt.status, w.Code)
			assert.NotContains(t, w.Body.String(), "pq:")
		})
	}
}

func TestVoteHandler_BadID(t *testing.T) {
	svc := new(MockSuggestionService)

	w := do(newRouter(svc, allow), http.MethodPost, "/suggestions/abc/vote", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(newRouter(svc, allow), http.MethodDelete, "/suggestions/-1/vote", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnvoteHandler(t *testing.T) {
	svc := new(MockSuggestionService)
	svc.On("Unvote", mock.Anything, alice, int64(7)).Return(suggestions.ErrVoteNotFound).Once()

	w := do(newRouter(svc, allow), http.MethodDelete, "/suggestions/7/vote", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitHandler(t *testing.T) {
	svc := new(MockSuggestionService)
	svc.On("Submit", mock.Anything, alice, "Grace Hopper").
		Return(&models.Suggestion{ID: 9, Speaker: "Grace Hopper", Email: alice.Email}, nil).Once()
	svc.On("Submit", mock.Anything, alice, "").Return(nil, suggestions.ErrEmptySpeaker).Once()

	h := newRouter(svc, allow)

	w := do(h, http.MethodPost, "/suggestions", `{"speaker":"Grace Hopper"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do(h, http.MethodPost, "/suggestions", `{"speaker":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListHandler(t *testing.T) {
	svc := new(MockSuggestionService)
	svc.On("List", mock.Anything).Return([]models.Suggestion{{ID: 1, Speaker: "Grace Hopper"}}, nil).Once()

	w := do(newRouter(svc, allow), http.MethodGet, "/suggestions", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Grace Hopper")
}

func TestReviewHandler(t *testing.T) {
	svc := new(MockSuggestionService)
	svc.On("Review", mock.Anything, int64(4), false).
		Return(&models.Suggestion{ID: 4, Reviewed: true}, nil).Once()

	h := newRouter(svc, allow)

	w := do(h, http.MethodPut, "/admin/suggestions/4/review", `{"approved":false}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(h, http.MethodPut, "/admin/suggestions/4/review", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}

func TestDuplicatesHandler(t *testing.T) {
	svc := new(MockSuggestionService)
	svc.On("Duplicates", mock.Anything).Return([]suggestions.DuplicateCandidate{{
		Suggestion:   models.Suggestion{ID: 3, Speaker: "Hopper"},
		Matches:      []models.Suggestion{{ID: 1, Speaker: "Grace Hopper", Approved: true}},
		SharedTokens: []string{"hopper"},
	}}, nil).Once()

	w := do(newRouter(svc, allow), http.MethodGet, "/admin/suggestions/duplicates", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"shared_tokens":["hopper"]`)
}

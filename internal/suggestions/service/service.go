package suggestions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"ms-speakers/internal/auth"
	"ms-speakers/internal/kafka"
	"ms-speakers/internal/logger"
	"ms-speakers/internal/metrics"
	"ms-speakers/internal/models"
)

const maxSpeakerLength = 200

var (
	ErrInvalidID          = errors.New("a valid suggestion id is required")
	ErrEmptySpeaker       = errors.New("speaker name is required")
	ErrSpeakerTooLong     = fmt.Errorf("speaker name must be at most %d characters", maxSpeakerLength)
	ErrSuggestionNotFound = errors.New("suggestion not found")
	ErrSuggestionClosed   = errors.New("suggestion was merged into another and no longer takes votes")
	ErrAlreadyVoted       = errors.New("you have already voted for this suggestion")
	ErrVoteNotFound       = errors.New("you have not voted for this suggestion")
	ErrMergeInProgress    = errors.New("another merge of this suggestion is in progress")
)

// PreconditionError rejects a merge whose suggestions are in the wrong state.
// Nothing has been written when it is returned.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

type DBLayer interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateSuggestion(ctx context.Context, s *models.Suggestion) error
	GetSuggestion(ctx context.Context, id int64) (*models.Suggestion, error)
	LockSuggestion(ctx context.Context, id int64) (*models.Suggestion, error)
	ListSuggestions(ctx context.Context) ([]models.Suggestion, error)
	VoterEmails(ctx context.Context, suggestionID int64) ([]string, error)
	InsertVotes(ctx context.Context, suggestionID int64, emails []string) (int64, error)
	DeleteVotes(ctx context.Context, suggestionID int64) (int64, error)
	MarkDuplicate(ctx context.Context, id int64) error
	SetReview(ctx context.Context, id int64, approved bool) (bool, error)
	AddVote(ctx context.Context, suggestionID int64, email string) (bool, error)
	RemoveVote(ctx context.Context, suggestionID int64, email string) (bool, error)
}

type ListCache interface {
	Get(ctx context.Context) ([]models.Suggestion, bool, error)
	Set(ctx context.Context, suggestions []models.Suggestion) error
	Invalidate(ctx context.Context) error
}

// MergeLocker serializes merges of one source across service instances.
type MergeLocker interface {
	Acquire(ctx context.Context, sourceID int64, owner string) (bool, error)
	Release(ctx context.Context, sourceID int64, owner string) error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, event interface{}) error
}

// Service owns suggestions and their votes. Cache and Locks may be nil.
type Service struct {
	DB        DBLayer
	Cache     ListCache
	Locks     MergeLocker
	Publisher EventPublisher
	Topic     string
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
}

func NewService(db DBLayer, cache ListCache, publisher EventPublisher, topic string, m *metrics.Metrics, log *logger.Logger) *Service {
	return &Service{DB: db, Cache: cache, Publisher: publisher, Topic: topic, Metrics: m, Logger: log}
}

// List returns every suggestion, most voted first.
func (s *Service) List(ctx context.Context) ([]models.Suggestion, error) {
	if s.Cache != nil {
		cached, ok, err := s.Cache.Get(ctx)
		if err != nil {
			s.Logger.Warn("CACHE", fmt.Sprintf("Suggestion cache read failed: %v", err))
		} else if ok {
			return cached, nil
		}
	}

	list, err := s.DB.ListSuggestions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, list); err != nil {
			s.Logger.Warn("CACHE", fmt.Sprintf("Suggestion cache write failed: %v", err))
		}
	}
	return list, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx); err != nil {
		s.Logger.Warn("CACHE", fmt.Sprintf("Suggestion cache invalidation failed: %v", err))
	}
}

func (s *Service) Submit(ctx context.Context, id auth.Identity, speaker string) (*models.Suggestion, error) {
	if !id.Authenticated() {
		return nil, auth.ErrUnauthenticated
	}
	speaker = strings.Join(strings.Fields(speaker), " ")
	switch {
	case speaker == "":
		return nil, ErrEmptySpeaker
	case len(speaker) > maxSpeakerLength:
		return nil, ErrSpeakerTooLong
	}

	suggestion := &models.Suggestion{Email: id.Email, Speaker: speaker}
	if err := s.DB.CreateSuggestion(ctx, suggestion); err != nil {
		return nil, fmt.Errorf("create suggestion: %w", err)
	}
	s.invalidate(ctx)
	s.Logger.Info("SUGGEST", fmt.Sprintf("Suggestion %d submitted: %q", suggestion.ID, speaker))
	return suggestion, nil
}

func (s *Service) Vote(ctx context.Context, id auth.Identity, suggestionID int64) error {
	if !id.Authenticated() {
		return auth.ErrUnauthenticated
	}
	suggestion, err := s.get(ctx, suggestionID)
	if err != nil {
		return err
	}
	if suggestion.Duplicate {
		return ErrSuggestionClosed
	}

	added, err := s.DB.AddVote(ctx, suggestionID, id.Email)
	if err != nil {
		return fmt.Errorf("add vote: %w", err)
	}
	if !added {
		return ErrAlreadyVoted
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) Unvote(ctx context.Context, id auth.Identity, suggestionID int64) error {
	if !id.Authenticated() {
		return auth.ErrUnauthenticated
	}
	if suggestionID <= 0 {
		return ErrInvalidID
	}

	removed, err := s.DB.RemoveVote(ctx, suggestionID, id.Email)
	if err != nil {
		return fmt.Errorf("remove vote: %w", err)
	}
	if !removed {
		return ErrVoteNotFound
	}
	s.invalidate(ctx)
	return nil
}

// Review records an admin approve/reject decision.
func (s *Service) Review(ctx context.Context, suggestionID int64, approved bool) (*models.Suggestion, error) {
	if suggestionID <= 0 {
		return nil, ErrInvalidID
	}
	ok, err := s.DB.SetReview(ctx, suggestionID, approved)
	if err != nil {
		return nil, fmt.Errorf("review suggestion: %w", err)
	}
	if !ok {
		return nil, ErrSuggestionNotFound
	}
	s.invalidate(ctx)
	s.Logger.Info("SUGGEST", fmt.Sprintf("Suggestion %d reviewed: approved=%t", suggestionID, approved))
	return s.get(ctx, suggestionID)
}

// Duplicates lists unapproved suggestions that share a name token with an
// approved one.
func (s *Service) Duplicates(ctx context.Context) ([]DuplicateCandidate, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return DetectDuplicates(list), nil
}

// Merge folds the votes of an unapproved duplicate into an approved suggestion
// and retires the duplicate. Voters already on the target keep their single
// vote. Everything happens in one transaction; on success the refreshed list
// is returned.
func (s *Service) Merge(ctx context.Context, sourceID, targetID int64) ([]models.Suggestion, error) {
	start := time.Now()
	if sourceID <= 0 || targetID <= 0 {
		return nil, ErrInvalidID
	}

	release, err := s.lockMerge(ctx, sourceID)
	if err != nil {
		s.Metrics.ObserveMerge("in_progress", start)
		return nil, err
	}
	defer release()

	var transferred, discarded int64
	err = s.DB.InTx(ctx, func(ctx context.Context) error {
		if err := s.checkMergePreconditions(ctx, sourceID, targetID); err != nil {
			return err
		}

		sourceVoters, err := s.DB.VoterEmails(ctx, sourceID)
		if err != nil {
			return fmt.Errorf("load source voters: %w", err)
		}
		targetVoters, err := s.DB.VoterEmails(ctx, targetID)
		if err != nil {
			return fmt.Errorf("load target voters: %w", err)
		}

		missing := difference(sourceVoters, targetVoters)
		if transferred, err = s.DB.InsertVotes(ctx, targetID, missing); err != nil {
			return fmt.Errorf("transfer votes: %w", err)
		}
		deleted, err := s.DB.DeleteVotes(ctx, sourceID)
		if err != nil {
			return fmt.Errorf("delete source votes: %w", err)
		}
		discarded = deleted - transferred
		if err := s.DB.MarkDuplicate(ctx, sourceID); err != nil {
			return fmt.Errorf("mark source duplicate: %w", err)
		}
		return nil
	})

	var precondition *PreconditionError
	switch {
	case errors.As(err, &precondition):
		s.Metrics.ObserveMerge("precondition_failed", start)
		s.Logger.LogMerge(sourceID, targetID, "rejected: "+precondition.Reason)
		return nil, err
	case err != nil:
		s.Metrics.ObserveMerge("error", start)
		return nil, err
	}

	s.Metrics.ObserveMerge("merged", start)
	s.Logger.LogMerge(sourceID, targetID, fmt.Sprintf("merged: transferred=%d discarded=%d", transferred, discarded))
	s.invalidate(ctx)

	event := kafka.SuggestionMergedEvent{
		SourceID:         sourceID,
		TargetID:         targetID,
		TransferredVotes: int(transferred),
		DiscardedVotes:   int(discarded),
		OccurredAt:       time.Now().UTC(),
	}
	if err := s.Publisher.PublishEvent(ctx, s.Topic, strconv.FormatInt(targetID, 10), event); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish merge %d -> %d: %v", sourceID, targetID, err))
	}

	// The merge is committed here; a failed reload is only logged.
	list, err := s.DB.ListSuggestions(ctx)
	if err != nil {
		s.Logger.Error("MERGE", fmt.Sprintf("Reload after merge %d -> %d failed: %v", sourceID, targetID, err))
		return nil, nil
	}
	return list, nil
}

// lockMerge takes the Redis merge lock when one is configured. A Redis
// failure is logged and the merge proceeds under the row locks alone.
func (s *Service) lockMerge(ctx context.Context, sourceID int64) (func(), error) {
	noop := func() {}
	if s.Locks == nil {
		return noop, nil
	}

	owner := uuid.NewString()
	ok, err := s.Locks.Acquire(ctx, sourceID, owner)
	if err != nil {
		s.Logger.Warn("REDIS", fmt.Sprintf("Merge lock for %d unavailable: %v", sourceID, err))
		return noop, nil
	}
	if !ok {
		return nil, ErrMergeInProgress
	}
	return func() {
		if err := s.Locks.Release(context.WithoutCancel(ctx), sourceID, owner); err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Failed to release merge lock for %d: %v", sourceID, err))
		}
	}, nil
}

func (s *Service) checkMergePreconditions(ctx context.Context, sourceID, targetID int64) error {
	if sourceID == targetID {
		return &PreconditionError{Reason: "cannot merge a suggestion into itself"}
	}

	source, err := s.DB.LockSuggestion(ctx, sourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return &PreconditionError{Reason: fmt.Sprintf("source suggestion %d does not exist", sourceID)}
	}
	if err != nil {
		return fmt.Errorf("load source suggestion: %w", err)
	}
	if source.Approved {
		return &PreconditionError{Reason: fmt.Sprintf("source suggestion %d is approved; only pending or rejected suggestions can be merged", sourceID)}
	}

	target, err := s.DB.LockSuggestion(ctx, targetID)
	if errors.Is(err, sql.ErrNoRows) {
		return &PreconditionError{Reason: fmt.Sprintf("target suggestion %d does not exist", targetID)}
	}
	if err != nil {
		return fmt.Errorf("load target suggestion: %w", err)
	}
	if !target.Approved {
		return &PreconditionError{Reason: fmt.Sprintf("target suggestion %d is not approved", targetID)}
	}
	return nil
}

func (s *Service) get(ctx context.Context, suggestionID int64) (*models.Suggestion, error) {
	if suggestionID <= 0 {
		return nil, ErrInvalidID
	}
	suggestion, err := s.DB.GetSuggestion(ctx, suggestionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSuggestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load suggestion: %w", err)
	}
	return suggestion, nil
}

// difference returns the members of a not present in b, in a's order.
func difference(a, b []string) []string {
	seen := make(map[string]struct{}, len(b))
	for _, v := range b {
		seen[v] = struct{}{}
	}
	out := []string{}
	for _, v := range a {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

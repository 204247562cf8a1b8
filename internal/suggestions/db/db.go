package db

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"ms-speakers/internal/database"
	"ms-speakers/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) conn(ctx context.Context) bun.IDB {
	return database.Conn(ctx, d.Bun)
}

func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.RunInTx(ctx, d.Bun, fn)
}

func (d *DB) CreateSuggestion(ctx context.Context, s *models.Suggestion) error {
	_, err := d.conn(ctx).NewInsert().Model(s).Returning("*").Exec(ctx)
	return err
}

// GetSuggestion returns sql.ErrNoRows when id is unknown.
func (d *DB) GetSuggestion(ctx context.Context, id int64) (*models.Suggestion, error) {
	var s models.Suggestion
	err := d.conn(ctx).NewSelect().Model(&s).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LockSuggestion is GetSuggestion with a row lock on Postgres, so a concurrent
// review cannot flip approval between the precondition check and the merge.
func (d *DB) LockSuggestion(ctx context.Context, id int64) (*models.Suggestion, error) {
	var s models.Suggestion
	q := d.conn(ctx).NewSelect().Model(&s).Where("id = ?", id)
	if d.Bun.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return &s, nil
}

func (d *DB) ListSuggestions(ctx context.Context) ([]models.Suggestion, error) {
	suggestions := []models.Suggestion{}
	err := d.conn(ctx).NewSelect().
		Model(&suggestions).
		OrderExpr("vote_count DESC, id ASC").
		Scan(ctx)
	return suggestions, err
}

func (d *DB) VoterEmails(ctx context.Context, suggestionID int64) ([]string, error) {
	emails := []string{}
	err := d.conn(ctx).NewSelect().
		Model((*models.Vote)(nil)).
		Column("email").
		Where("suggestion_id = ?", suggestionID).
		OrderExpr("email ASC").
		Scan(ctx, &emails)
	return emails, err
}

// InsertVotes adds one vote per email and skips voters already present.
// It returns the number of rows actually inserted.
func (d *DB) InsertVotes(ctx context.Context, suggestionID int64, emails []string) (int64, error) {
	if len(emails) == 0 {
		return 0, nil
	}
	votes := make([]models.Vote, 0, len(emails))
	for _, email := range emails {
		votes = append(votes, models.Vote{SuggestionID: suggestionID, Email: email})
	}
	res, err := d.conn(ctx).NewInsert().
		Model(&votes).
		On("CONFLICT (suggestion_id, email) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *DB) DeleteVotes(ctx context.Context, suggestionID int64) (int64, error) {
	res, err := d.conn(ctx).NewDelete().
		Model((*models.Vote)(nil)).
		Where("suggestion_id = ?", suggestionID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkDuplicate moves a suggestion to its terminal merged state.
func (d *DB) MarkDuplicate(ctx context.Context, id int64) error {
	_, err := d.conn(ctx).NewUpdate().
		Model((*models.Suggestion)(nil)).
		Set("reviewed = ?", true).
		Set("approved = ?", false).
		Set("duplicate = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// SetReview records an admin decision. Approving clears a duplicate mark.
func (d *DB) SetReview(ctx context.Context, id int64, approved bool) (bool, error) {
	q := d.conn(ctx).NewUpdate().
		Model((*models.Suggestion)(nil)).
		Set("reviewed = ?", true).
		Set("approved = ?", approved).
		Where("id = ?", id)
	if approved {
		q = q.Set("duplicate = ?", false)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// AddVote reports false when the voter already voted for the suggestion.
func (d *DB) AddVote(ctx context.Context, suggestionID int64, email string) (bool, error) {
	n, err := d.InsertVotes(ctx, suggestionID, []string{email})
	return n == 1, err
}

func (d *DB) RemoveVote(ctx context.Context, suggestionID int64, email string) (bool, error) {
	res, err := d.conn(ctx).NewDelete().
		Model((*models.Vote)(nil)).
		Where("suggestion_id = ?", suggestionID).
		Where("email = ?", email).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

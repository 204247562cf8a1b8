package db

import (
	"context"

	"github.com/uptrace/bun"

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

// LatestTicket returns the most recently created ticket for (event, email),
// or sql.ErrNoRows.
func (d *DB) LatestTicket(ctx context.Context, eventID, email string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.conn(ctx).NewSelect().
		Model(&ticket).
		Where("event_id = ?", eventID).
		Where("email = ?", email).
		OrderExpr("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// MarkTicketAttributed flips the ticket's attributed flag. It reports false
// when the flag was already set, which makes the caller skip the increment.
func (d *DB) MarkTicketAttributed(ctx context.Context, ticketID string) (bool, error) {
	res, err := d.conn(ctx).NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("referral_attributed = ?", true).
		Where("id = ?", ticketID).
		Where("referral_attributed = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const incrementReferralQuery = `INSERT INTO referrals (event_id, code, "count") VALUES (?, ?, 1)
ON CONFLICT (event_id, code) DO UPDATE SET "count" = referrals."count" + 1`

// IncrementReferral creates the (event, code) record on first use and
// increments it atomically afterwards.
func (d *DB) IncrementReferral(ctx context.Context, eventID, code string) error {
	_, err := d.conn(ctx).ExecContext(ctx, incrementReferralQuery, eventID, code)
	return err
}

// EnsureReferral creates a zero-count record if none exists and returns the current one.
func (d *DB) EnsureReferral(ctx context.Context, eventID, code string) (*models.ReferralRecord, error) {
	_, err := d.conn(ctx).NewInsert().
		Model(&models.ReferralRecord{EventID: eventID, Code: code}).
		On("CONFLICT (event_id, code) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	var record models.ReferralRecord
	err = d.conn(ctx).NewSelect().
		Model(&record).
		Where("event_id = ?", eventID).
		Where("code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (d *DB) ReferralExists(ctx context.Context, eventID, code string) (bool, error) {
	return d.conn(ctx).NewSelect().
		Model((*models.ReferralRecord)(nil)).
		Where("event_id = ?", eventID).
		Where("code = ?", code).
		Exists(ctx)
}

func (d *DB) ListReferrals(ctx context.Context, eventID string) ([]models.ReferralRecord, error) {
	records := []models.ReferralRecord{}
	err := d.conn(ctx).NewSelect().
		Model(&records).
		Where("event_id = ?", eventID).
		OrderExpr(`"count" DESC, code ASC`).
		Scan(ctx)
	return records, err
}

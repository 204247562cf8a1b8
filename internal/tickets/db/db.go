package db

import (
	"context"
	"time"

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

// CreateTicket allocates a ticket through the create_ticket procedure, which
// owns the capacity and one-per-person checks. Failures carry the procedure's
// TK* error codes as *pq.Error.
func (d *DB) CreateTicket(ctx context.Context, eventID, email, referralCode string) (string, error) {
	var id string
	err := d.conn(ctx).QueryRowContext(ctx, "SELECT create_ticket(?, ?, ?)", eventID, email, referralCode).Scan(&id)
	return id, err
}

func (d *DB) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.conn(ctx).NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) TicketsByEmail(ctx context.Context, email string) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	err := d.conn(ctx).NewSelect().
		Model(&tickets).
		Where("email = ?", email).
		OrderExpr("created_at DESC").
		Scan(ctx)
	return tickets, err
}

func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.conn(ctx).NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// DeleteTicket removes the ticket only if email holds it.
func (d *DB) DeleteTicket(ctx context.Context, id, email string) (bool, error) {
	res, err := d.conn(ctx).NewDelete().
		Model((*models.Ticket)(nil)).
		Where("id = ?", id).
		Where("email = ?", email).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkScanned reports false when the ticket is unknown or already scanned.
func (d *DB) MarkScanned(ctx context.Context, id, scannedBy string, at time.Time) (bool, error) {
	res, err := d.conn(ctx).NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("scanned = ?", true).
		Set("scanned_at = ?", at).
		Set("scanned_by = ?", scannedBy).
		Where("id = ?", id).
		Where("scanned = ?", false).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

package tickets

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-speakers/internal/auth"
	"ms-speakers/internal/kafka"
	"ms-speakers/internal/logger"
	"ms-speakers/internal/metrics"
	"ms-speakers/internal/models"
	referral "ms-speakers/internal/referral/service"
	"ms-speakers/internal/sse"
	"ms-speakers/internal/tickets/qr"
)

const (
	eventID     = "0b8e4c1e-52a7-4c37-9f3a-3f0f5b1d2a11"
	ticketID    = "6f1a0c55-8a39-4c9e-b0b2-7e9d2f0c1a22"
	issuedTopic = "speakers.ticket.issued"
)

type MockTicketDBLayer struct {
	mock.Mock
}

func (m *MockTicketDBLayer) CreateTicket(ctx context.Context, eventID, email, referralCode string) (string, error) {
	args := m.Called(ctx, eventID, email, referralCode)
	return args.String(0), args.Error(1)
}

func (m *MockTicketDBLayer) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockTicketDBLayer) TicketsByEmail(ctx context.Context, email string) ([]models.Ticket, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Ticket), args.Error(1)
}

func (m *MockTicketDBLayer) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockTicketDBLayer) DeleteTicket(ctx context.Context, id, email string) (bool, error) {
	args := m.Called(ctx, id, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockTicketDBLayer) MarkScanned(ctx context.Context, id, scannedBy string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, scannedBy, at)
	return args.Bool(0), args.Error(1)
}

type MockReferralValidator struct {
	mock.Mock
}

func (m *MockReferralValidator) ValidateCode(ctx context.Context, id auth.Identity, eventID, code string) (referral.Validation, error) {
	args := m.Called(ctx, id, eventID, code)
	return args.Get(0).(referral.Validation), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishEvent(ctx context.Context, topic, key string, event interface{}) error {
	return m.Called(ctx, topic, key, event).Error(0)
}

var (
	alice   = auth.NewIdentity("u-alice", "alice@stanford.edu")
	scanner = auth.NewIdentity("u-door", "door@stanford.edu")
	fixedAt = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc  *TicketService
	db   *MockTicketDBLayer
	refs *MockReferralValidator
	pub  *MockPublisher
	m    *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gen, err := qr.NewGenerator("test-secret")
	require.NoError(t, err)

	f := &fixture{
		db:   new(MockTicketDBLayer),
		refs: new(MockReferralValidator),
		pub:  new(MockPublisher),
		m:    metrics.New(prometheus.NewRegistry()),
	}
	f.svc = NewTicketService(f.db, f.refs, gen, f.pub, issuedTopic, f.m, logger.NewNop())
	f.svc.now = func() time.Time { return fixedAt }
	return f
}

func aliceTicket(code string) *models.Ticket {
	return &models.Ticket{ID: ticketID, EventID: eventID, Email: alice.Email, Type: models.TicketTypeStandard, ReferralCode: code}
}

func TestPurchase_WithValidReferral(t *testing.T) {
	f := newFixture(t)
	f.refs.On("ValidateCode", mock.Anything, alice, eventID, "bob").Return(referral.Validation{Valid: true}, nil).Once()
	f.db.On("CreateTicket", mock.Anything, eventID, alice.Email, "bob").Return(ticketID, nil).Once()
	f.db.On("GetTicket", mock.Anything, ticketID).Return(aliceTicket("bob"), nil).Once()
	f.pub.On("PublishEvent", mock.Anything, issuedTopic, eventID, kafka.TicketIssuedEvent{
		TicketID: ticketID, EventID: eventID, Email: alice.Email, ReferralCode: "bob", OccurredAt: fixedAt,
	}).Return(nil).Once()

	ticket, err := f.svc.Purchase(context.Background(), alice, eventID, " bob ")

	require.NoError(t, err)
	assert.Equal(t, "bob", ticket.ReferralCode)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.m.TicketPurchases.WithLabelValues("issued")))
	mock.AssertExpectationsForObjects(t, f.db, f.refs, f.pub)
}

func TestPurchase_SelfReferralKeptOnTicket(t *testing.T) {
	f := newFixture(t)
	f.refs.On("ValidateCode", mock.Anything, alice, eventID, "alice").
		Return(referral.Validation{Valid: false, Reason: referral.ReasonSelfReferral}, nil).Once()
	f.db.On("CreateTicket", mock.Anything, eventID, alice.Email, "alice").Return(ticketID, nil).Once()
	f.db.On("GetTicket", mock.Anything, ticketID).Return(aliceTicket("alice"), nil).Once()
	f.pub.On("PublishEvent", mock.Anything, issuedTopic, eventID, mock.Anything).Return(nil).Once()

	ticket, err := f.svc.Purchase(context.Background(), alice, eventID, "Alice")

	require.NoError(t, err)
	assert.Equal(t, "alice", ticket.ReferralCode)
	mock.AssertExpectationsForObjects(t, f.db, f.refs)
}

func TestPurchase_ReferralCodeNormalized(t *testing.T) {
	f := newFixture(t)
	f.refs.On("ValidateCode", mock.Anything, alice, eventID, "bob").Return(referral.Validation{Valid: true}, nil).Once()
	f.db.On("CreateTicket", mock.Anything, eventID, alice.Email, "bob").Return(ticketID, nil).Once()
	f.db.On("GetTicket", mock.Anything, ticketID).Return(aliceTicket("bob"), nil).Once()
	f.pub.On("PublishEvent", mock.Anything, issuedTopic, eventID, mock.Anything).Return(nil).Once()

	_, err := f.svc.Purchase(context.Background(), alice, eventID, " BOB ")

	require.NoError(t, err)
	mock.AssertExpectationsForObjects(t, f.db, f.refs)
}

func TestPurchase_InvalidReferralRejected(t *testing.T) {
	f := newFixture(t)
	f.refs.On("ValidateCode", mock.Anything, alice, eventID, "nobody").
		Return(referral.Validation{Valid: false, Reason: referral.ReasonInvalid}, nil).Once()

	_, err := f.svc.Purchase(context.Background(), alice, eventID, "nobody")

	assert.ErrorIs(t, err, ErrInvalidReferral)
	f.db.AssertNotCalled(t, "CreateTicket", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPurchase_StoreErrorCodes(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    error
		outcome string
	}{
		{"capacity", &pq.Error{Code: "TK001"}, ErrCapacityExceeded, "sold_out"},
		{"duplicate", &pq.Error{Code: "TK002"}, ErrAlreadyHasTicket, "duplicate"},
		{"no event", &pq.Error{Code: "TK003"}, ErrEventNotFound, "no_event"},
		{"other pq", &pq.Error{Code: "40P01"}, ErrPurchaseFailed, "error"},
		{"network", errors.New("dial tcp: connection refused"), ErrPurchaseFailed, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.db.On("CreateTicket", mock.Anything, eventID, alice.Email, "").Return("", tt.err).Once()

			_, err := f.svc.Purchase(context.Background(), alice, eventID, "")

			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, float64(1), testutil.ToFloat64(f.m.TicketPurchases.WithLabelValues(tt.outcome)))
			f.pub.AssertNotCalled(t, "PublishEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestPurchase_PublishFailureTolerated(t *testing.T) {
	f := newFixture(t)
	f.db.On("CreateTicket", mock.Anything, eventID, alice.Email, "").Return(ticketID, nil).Once()
	f.db.On("GetTicket", mock.Anything, ticketID).Return(aliceTicket(""), nil).Once()
	f.pub.On("PublishEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	_, err := f.svc.Purchase(context.Background(), alice, eventID, "")
	assert.NoError(t, err)
}

func TestPurchase_Rejections(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Purchase(context.Background(), auth.Identity{}, eventID, "")
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = f.svc.Purchase(context.Background(), alice, "not-a-uuid", "")
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestCancel(t *testing.T) {
	t.Run("holder before event goes live", func(t *testing.T) {
		f := newFixture(t)
		f.db.On("GetTicket", mock.Anything, ticketID).Return(aliceTicket(""), nil).Once()
		f.db.On("GetEvent", mock.Anything, eventID).Return(&models.Event{ID: eventID}, nil).Once()
		f.db.On("DeleteTicket", mock.Anything, ticketID, alice.Email).Return(true, nil).Once()

		assert.NoError(t, f.svc.Cancel(context.Background(), alice, ticketID))
		f.db.AssertExpectations(t)
	})

	t.Run("live event", func(t *testing.T) {
		f := newFixture(t)
		f.db.On("GetTicket", mock.Anything, ticketID).Return(aliceTicket(""), nil).Once()
		f.db.On("GetEvent", mock.Anything, eventID).Return(&models.Event{ID: eventID, IsLive: true}, nil).Once()

		assert.ErrorIs(t, f.svc.Cancel(context.Background(), alice, ticketID), ErrEventLive)
		f.db.AssertNotCalled(t, "DeleteTicket", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("someone else's ticket", func(t *testing.T) {
		f := newFixture(t)
		f.db.On("GetTicket", mock.Anything, ticketID).Return(aliceTicket(""), nil).Once()

		bob := auth.NewIdentity("u-bob", "bob@stanford.edu")
		assert.ErrorIs(t, f.svc.Cancel(context.Background(), bob, ticketID), ErrTicketNotFound)
	})

	t.Run("missing ticket", func(t *testing.T) {
		f := newFixture(t)
		f.db.On("GetTicket", mock.Anything, ticketID).Return(nil, sql.ErrNoRows).Once()

		assert.ErrorIs(t, f.svc.Cancel(context.Background(), alice, ticketID), ErrTicketNotFound)
	})
}

func TestScan(t *testing.T) {
	f := newFixture(t)
	scanned := aliceTicket("")
	scanned.Scanned = true
	f.db.On("MarkScanned", mock.Anything, ticketID, scanner.Email, fixedAt).Return(true, nil).Once()
	f.db.On("MarkScanned", mock.Anything, ticketID, scanner.Email, fixedAt).Return(false, nil).Once()
	f.db.On("GetTicket", mock.Anything, ticketID).Return(scanned, nil)

	ticket, err := f.svc.Scan(context.Background(), scanner, ticketID)
	require.NoError(t, err)
	assert.True(t, ticket.Scanned)

	_, err = f.svc.Scan(context.Background(), scanner, ticketID)
	assert.ErrorIs(t, err, ErrAlreadyScanned)
}

func TestScan_NotifiesFirstCheckinOnly(t *testing.T) {
	f := newFixture(t)
	emitter := sse.NewCheckinEmitter()
	f.svc.Checkins = emitter
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed := emitter.Subscribe(ctx, eventID)

	f.db.On("MarkScanned", mock.Anything, ticketID, scanner.Email, fixedAt).Return(true, nil).Once()
	f.db.On("MarkScanned", mock.Anything, ticketID, scanner.Email, fixedAt).Return(false, nil).Once()
	f.db.On("GetTicket", mock.Anything, ticketID).Return(aliceTicket(""), nil)

	_, err := f.svc.Scan(context.Background(), scanner, ticketID)
	require.NoError(t, err)
	_, err = f.svc.Scan(context.Background(), scanner, ticketID)
	require.ErrorIs(t, err, ErrAlreadyScanned)

	require.Len(t, feed, 1)
	got := <-feed
	assert.Equal(t, ticketID, got.ID)
}

func TestScan_UnknownTicket(t *testing.T) {
	f := newFixture(t)
	f.db.On("MarkScanned", mock.Anything, "nope", scanner.Email, fixedAt).Return(false, nil).Once()
	f.db.On("GetTicket", mock.Anything, "nope").Return(nil, sql.ErrNoRows).Once()

	_, err := f.svc.Scan(context.Background(), scanner, "nope")
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestScanPayload(t *testing.T) {
	f := newFixture(t)
	sealed, err := f.svc.QR.Seal(qr.Payload{TicketID: ticketID, EventID: eventID, Email: alice.Email})
	require.NoError(t, err)
	f.db.On("GetTicket", mock.Anything, ticketID).Return(aliceTicket(""), nil)
	f.db.On("MarkScanned", mock.Anything, ticketID, scanner.Email, fixedAt).Return(true, nil).Once()

	_, err = f.svc.ScanPayload(context.Background(), scanner, sealed)
	require.NoError(t, err)

	_, err = f.svc.ScanPayload(context.Background(), scanner, "forged")
	assert.ErrorIs(t, err, ErrInvalidQR)

	other, err := f.svc.QR.Seal(qr.Payload{TicketID: ticketID, EventID: eventID, Email: "mallory@stanford.edu"})
	require.NoError(t, err)
	_, err = f.svc.ScanPayload(context.Background(), scanner, other)
	assert.ErrorIs(t, err, ErrInvalidQR)
	f.db.AssertNumberOfCalls(t, "MarkScanned", 1)
}

func TestQRCode_HolderOnly(t *testing.T) {
	f := newFixture(t)
	f.db.On("GetTicket", mock.Anything, ticketID).Return(aliceTicket(""), nil)

	png, err := f.svc.QRCode(context.Background(), alice, ticketID)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	_, err = f.svc.QRCode(context.Background(), auth.NewIdentity("u-bob", "bob@stanford.edu"), ticketID)
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestMine(t *testing.T) {
	f := newFixture(t)
	f.db.On("TicketsByEmail", mock.Anything, alice.Email).Return([]models.Ticket{*aliceTicket("")}, nil).Once()

	tickets, err := f.svc.Mine(context.Background(), alice)
	require.NoError(t, err)
	assert.Len(t, tickets, 1)

	_, err = f.svc.Mine(context.Background(), auth.Identity{})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

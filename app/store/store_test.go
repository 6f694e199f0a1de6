package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnp2003/captify-ai/app/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestUpsertUser(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO users \(id, email, name, points, created_at\)`).
		WithArgs("user_1", "a@example.com", "Ada", int64(50)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "points", "created_at"}).
			AddRow("user_1", "a@example.com", "Ada", int64(50), created))

	u, err := s.UpsertUser(context.Background(), models.User{ID: "user_1", Email: "a@example.com", Name: "Ada"}, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), u.Points)
	assert.Equal(t, created, u.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertUser_MissingID(t *testing.T) {
	s, mock := newMockStore(t)
	_, err := s.UpsertUser(context.Background(), models.User{}, 50)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPoints_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT points`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"points"}))

	_, err := s.GetPoints(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdjustPoints(t *testing.T) {
	t.Run("credit creates or increments", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`SET points = users.points \+ EXCLUDED.points`).
			WithArgs("U1", int64(100)).
			WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow(int64(130)))

		bal, err := s.AdjustPoints(context.Background(), "U1", 100)
		require.NoError(t, err)
		assert.Equal(t, int64(130), bal)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("debit within balance", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`SET points = points - \$2`).
			WithArgs("U1", int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"points"}).AddRow(int64(45)))

		bal, err := s.AdjustPoints(context.Background(), "U1", -5)
		require.NoError(t, err)
		assert.Equal(t, int64(45), bal)
	})

	t.Run("debit beyond balance", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`SET points = points - \$2`).
			WithArgs("U1", int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"points"}))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("U1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := s.AdjustPoints(context.Background(), "U1", -5)
		assert.ErrorIs(t, err, ErrInsufficientPoints)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("debit unknown user", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`SET points = points - \$2`).
			WithArgs("ghost", int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"points"}))
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := s.AdjustPoints(context.Background(), "ghost", -5)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("database error is wrapped", func(t *testing.T) {
		s, mock := newMockStore(t)
		boom := errors.New("connection reset")
		mock.ExpectQuery(`SET points = users.points`).
			WithArgs("U1", int64(100)).
			WillReturnError(boom)

		_, err := s.AdjustPoints(context.Background(), "U1", 100)
		assert.ErrorIs(t, err, boom)
	})
}

func testSubscription() models.Subscription {
	return models.Subscription{
		UserID:               "U1",
		StripeSubscriptionID: "sub_123",
		StripeCustomerID:     "cus_1",
		Plan:                 models.PlanBasic,
		Status:               "active",
		CurrentPeriodStart:   time.Unix(1740000000, 0),
		CurrentPeriodEnd:     time.Unix(1742592000, 0),
	}
}

func TestUpsertSubscription(t *testing.T) {
	s, mock := newMockStore(t)
	sub := testSubscription()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO users \(id, created_at\)`).
		WithArgs("U1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO subscriptions`).
		WithArgs("sub_123", "U1", "cus_1", models.PlanBasic, "active",
			sub.CurrentPeriodStart.UTC(), sub.CurrentPeriodEnd.UTC()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.UpsertSubscription(context.Background(), sub))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSubscription_OtherOwner(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO users`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO subscriptions`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.UpsertSubscription(context.Background(), testSubscription())
	assert.ErrorIs(t, err, ErrSubscriptionOwner)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestSubscription(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	cols := []string{"stripe_subscription_id", "user_id", "stripe_customer_id", "plan", "status",
		"current_period_start", "current_period_end", "updated_at"}

	mock.ExpectQuery(`FROM subscriptions`).
		WithArgs("U1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("sub_123", "U1", nil, "Pro", "active", now, now, now))

	sub, err := s.LatestSubscription(context.Background(), "U1")
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, sub.Plan)
	assert.Empty(t, sub.StripeCustomerID)

	mock.ExpectQuery(`FROM subscriptions`).
		WithArgs("U2").
		WillReturnRows(sqlmock.NewRows(cols))
	_, err = s.LatestSubscription(context.Background(), "U2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGeneratedContent(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`INSERT INTO generated_content`).
		WithArgs(sqlmock.AnyArg(), "U1", "linkedin", "launch day", "post body").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	saved, err := s.SaveGeneratedContent(context.Background(), models.GeneratedContent{
		UserID:      "U1",
		ContentType: "linkedin",
		Prompt:      "launch day",
		Content:     "post body",
	})
	require.NoError(t, err)
	assert.Len(t, saved.ID, 36)
	assert.Equal(t, now, saved.CreatedAt)

	mock.ExpectQuery(`FROM generated_content`).
		WithArgs("U1", 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "content_type", "prompt", "content", "created_at"}).
			AddRow(saved.ID, "U1", "linkedin", "launch day", "post body", now))

	items, err := s.ListGeneratedContent(context.Background(), "U1", 20)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, saved.ID, items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

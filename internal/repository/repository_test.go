package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmehdipour/wallet-notifier/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "mysql"), mock
}

var emailCols = []string{
	"id", "event_id", "kind", "wallet_id", "copayer_id", "to_address", "from_address",
	"subject", "body_text", "body_html", "sent", "sent_on", "attempts", "last_error", "created_on",
}

func sampleNotification() *model.RenderedNotification {
	return &model.RenderedNotification{
		ID:        "n1",
		EventID:   "NewIncomingTx:w1:tx1",
		Kind:      model.KindNewIncomingTx,
		WalletID:  "w1",
		CopayerID: "c1",
		To:        "a@b.com",
		From:      "wallet@example.com",
		Subject:   "New payment received",
		Text:      "body",
		CreatedOn: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestOutboxRecord(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOutboxRepository(db)
	n := sampleNotification()

	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO emails")).
		WithArgs(n.ID, n.EventID, "NewIncomingTx", n.WalletID, n.CopayerID, n.To, n.From, n.Subject, n.Text, n.HTML, n.CreatedOn).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT IGNORE INTO emails")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := repo.Record(context.Background(), n)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Record(context.Background(), n)
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxGet(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOutboxRepository(db)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM emails WHERE id = ?")).
		WithArgs("n1").
		WillReturnRows(sqlmock.NewRows(emailCols).AddRow(
			"n1", "NewIncomingTx:w1:tx1", "NewIncomingTx", "w1", "c1", "a@b.com", "wallet@example.com",
			"subj", "text", "", false, nil, 1, "smtp down", created,
		))
	mock.ExpectQuery(regexp.QuoteMeta("FROM emails WHERE id = ?")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(emailCols))

	n, err := repo.Get(context.Background(), "n1")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, model.KindNewIncomingTx, n.Kind)
	assert.False(t, n.Sent)
	assert.False(t, n.SentOn.Valid)
	assert.Equal(t, "smtp down", n.LastError.String)
	assert.Equal(t, 1, n.Attempts)

	n, err = repo.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, n)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxMarkSentAndFailure(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOutboxRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("SET sent = 1")).WithArgs("n1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET attempts = attempts + 1, last_error = ?")).
		WithArgs("timeout", "n2").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkSent(context.Background(), "n1"))
	require.NoError(t, repo.RecordFailure(context.Background(), "n2", "timeout"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxListUnsentDefaultsLimit(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOutboxRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE sent = 0 ORDER BY created_on ASC")).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows(emailCols).AddRow(
			"n1", "e", "TxConfirmation", "w1", "c1", "a@b.com", "f@b.com",
			"s", "t", "<p>t</p>", false, nil, 0, nil, time.Now(),
		))

	rows, err := repo.ListUnsent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "<p>t</p>", rows[0].HTML)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletsGet(t *testing.T) {
	db, mock := newMock(t)
	repo := NewWalletsRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM wallets WHERE id = ?")).
		WithArgs("w1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "m", "n", "chain", "network"}).
			AddRow("w1", "Family", 2, 3, "btc", "livenet"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM wallets WHERE id = ?")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "m", "n", "chain", "network"}))

	w, err := repo.Get(context.Background(), "w1")
	require.NoError(t, err)
	assert.Equal(t, model.Wallet{ID: "w1", Name: "Family", M: 2, N: 3, Chain: "btc", Network: "livenet"}, *w)

	w, err = repo.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, w)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreferencesListAndReplace(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPreferencesRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("FROM copayer_preferences")).
		WithArgs("w1").
		WillReturnRows(sqlmock.NewRows([]string{"copayer_id", "wallet_id", "email", "language", "unit", "opt_out"}).
			AddRow("c1", "w1", "a@b.com", "es", "bit", "TxConfirmation").
			AddRow("c2", "w1", "", "en", "btc", ""))

	prefs, err := repo.ListByWallet(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, prefs, 2)
	assert.Equal(t, model.UnitBit, prefs[0].Unit)
	assert.True(t, prefs[0].OptOut.Has(model.KindTxConfirmation))
	assert.Empty(t, prefs[1].OptOut)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM copayer_preferences")).WithArgs("w1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO copayer_preferences")).
		WithArgs("c1", "w1", 0, "a@b.com", "es", "bit", "TxConfirmation").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = repo.ReplaceForWallet(ctx, nil, "w1", prefs[:1])
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCHDeliveriesInsertAndList(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCHDeliveriesRepository(db)
	ctx := context.Background()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := []model.DeliveryReport{
		{NotificationID: "n1", EventID: "e", Kind: "NewIncomingTx", WalletID: "w1", To: "a@b.com", Outcome: "sent", CreatedAt: at},
		{NotificationID: "n2", EventID: "e", Kind: "NewIncomingTx", WalletID: "w1", To: "c@b.com", Outcome: "unsent", Error: "x", CreatedAt: at},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO wnotif.deliveries"))
	prep.ExpectExec().WithArgs("n1", "e", "NewIncomingTx", "w1", "a@b.com", "sent", "", at).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("n2", "e", "NewIncomingTx", "w1", "c@b.com", "unsent", "x", at).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.InsertBatch(ctx, rows))
	require.NoError(t, repo.InsertBatch(ctx, nil))

	mock.ExpectQuery(regexp.QuoteMeta("AND outcome = ? ORDER BY created_at DESC LIMIT ? OFFSET ?")).
		WithArgs("w1", "unsent", 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"notification_id", "event_id", "kind", "wallet_id", "to_address", "outcome", "error", "created_at"}).
			AddRow("n2", "e", "NewIncomingTx", "w1", "c@b.com", "unsent", "x", at))

	got, err := repo.ListByWallet(ctx, "w1", model.OutcomeUnsent, 0, -1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c@b.com", got[0].To)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryOutbox(t *testing.T) {
	ctx := context.Background()
	o := NewMemoryOutbox()

	a := sampleNotification()
	b := sampleNotification()
	b.ID, b.To, b.CreatedOn = "n2", "c@b.com", a.CreatedOn.Add(time.Second)

	created, err := o.Record(ctx, a)
	require.NoError(t, err)
	assert.True(t, created)
	created, _ = o.Record(ctx, a)
	assert.False(t, created)
	_, _ = o.Record(ctx, b)

	unsent, err := o.ListUnsent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unsent, 2)
	assert.Equal(t, "n1", unsent[0].ID)

	require.NoError(t, o.RecordFailure(ctx, "n2", "boom"))
	require.NoError(t, o.MarkSent(ctx, "n1"))

	got, _ := o.Get(ctx, "n1")
	assert.True(t, got.Sent)
	assert.True(t, got.SentOn.Valid)
	assert.Equal(t, 1, got.Attempts)

	unsent, _ = o.ListUnsent(ctx, 10)
	require.Len(t, unsent, 1)
	assert.Equal(t, "boom", unsent[0].LastError.String)

	missing, err := o.Get(ctx, "zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryPreferencesCopies(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPreferences()
	in := []model.CopayerPreference{{CopayerID: "c1", Email: "a@b.com"}}
	require.NoError(t, p.ReplaceForWallet(ctx, nil, "w1", in))

	out, err := p.ListByWallet(ctx, "w1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "w1", out[0].WalletID)

	out[0].Email = "changed"
	again, _ := p.ListByWallet(ctx, "w1")
	assert.Equal(t, "a@b.com", again[0].Email)
}

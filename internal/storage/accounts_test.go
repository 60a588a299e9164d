package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkorchagin/accountstore/pkg/models"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestSaveAccount_UpsertIsIdempotent(t *testing.T) {
	m := newTestManager(t)

	account := testAccount("a1")
	require.True(t, m.SaveAccount(account))

	first := m.AccountsLastUpdated()
	require.NotNil(t, first)

	time.Sleep(20 * time.Millisecond)
	account.ConfigID = "cfg-updated"
	require.True(t, m.SaveAccount(account))

	accounts := m.LoadAccounts()
	require.Len(t, accounts, 1)
	assert.Equal(t, "a1", accounts[0].ID)
	assert.Equal(t, "cfg-updated", accounts[0].ConfigID)

	second := m.AccountsLastUpdated()
	require.NotNil(t, second)
	assert.True(t, second.After(*first), "updated_at must advance on rewrite")
}

func TestSaveAccount_RejectsMissingID(t *testing.T) {
	m := newTestManager(t)

	account := testAccount("")
	assert.False(t, m.SaveAccount(account))
	assert.Equal(t, 0, poolBuilds(m))
}

func TestSaveAccount_RoundTripsOptionalFields(t *testing.T) {
	m := newTestManager(t)

	account := testAccount("full")
	account.HostCOSes = strPtr("host-cookie")
	account.ExpiresAt = strPtr("2026-09-01T00:00:00Z")
	account.Disabled = true
	account.MailProvider = strPtr(models.MailProviderIMAP)
	account.MailAddress = strPtr("user@example.com")
	account.MailPassword = strPtr("secret")
	account.MailBaseURL = strPtr("imap.example.com:993")
	account.MailVerifySSL = boolPtr(false)
	require.True(t, m.SaveAccount(account))

	accounts := m.LoadAccounts()
	require.Len(t, accounts, 1)
	got := accounts[0]

	require.NotNil(t, got.HostCOSes)
	assert.Equal(t, "host-cookie", *got.HostCOSes)
	require.NotNil(t, got.ExpiresAt)
	assert.Equal(t, "2026-09-01T00:00:00Z", *got.ExpiresAt)
	assert.True(t, got.Disabled)
	require.NotNil(t, got.MailProvider)
	assert.Equal(t, models.MailProviderIMAP, *got.MailProvider)
	require.NotNil(t, got.MailVerifySSL)
	assert.False(t, *got.MailVerifySSL)
	assert.Nil(t, got.MailClientID)
	assert.Nil(t, got.MailTenant)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestSyncAccounts_ReconcilesToTargetSet(t *testing.T) {
	m := newTestManager(t)

	require.True(t, m.SaveAccount(testAccount("a")))
	require.True(t, m.SaveAccount(testAccount("b")))
	require.True(t, m.SaveAccount(testAccount("c")))

	updated := testAccount("b")
	updated.ConfigID = "cfg-new"
	target := []models.Account{updated, testAccount("c"), testAccount("d")}
	require.True(t, m.SyncAccounts(target))

	assert.Equal(t, []string{"b", "c", "d"}, persistedIDs(t, m))

	for _, account := range m.LoadAccounts() {
		if account.ID == "b" {
			assert.Equal(t, "cfg-new", account.ConfigID)
		}
	}
}

func TestSyncAccounts_EmptyTargetWipesTable(t *testing.T) {
	m := newTestManager(t)

	require.True(t, m.SaveAccount(testAccount("a")))
	require.True(t, m.SaveAccount(testAccount("b")))

	require.True(t, m.SyncAccounts(nil))
	assert.Empty(t, persistedIDs(t, m))
}

func TestSyncAccounts_SkipsRecordsWithoutID(t *testing.T) {
	m := newTestManager(t)

	target := []models.Account{testAccount(""), testAccount("a")}
	require.True(t, m.SyncAccounts(target))
	assert.Equal(t, []string{"a"}, persistedIDs(t, m))
}

func TestSyncAccounts_DuplicateIDLastWins(t *testing.T) {
	m := newTestManager(t)

	first := testAccount("dup")
	first.ConfigID = "cfg-one"
	second := testAccount("dup")
	second.ConfigID = "cfg-two"

	require.True(t, m.SyncAccounts([]models.Account{first, second}))

	accounts := m.LoadAccounts()
	require.Len(t, accounts, 1)
	assert.Equal(t, "cfg-two", accounts[0].ConfigID)
}

func TestSyncAccounts_RollsBackOnMidSyncFailure(t *testing.T) {
	m := newTestManager(t)

	require.True(t, m.SaveAccount(testAccount("a")))
	require.True(t, m.SaveAccount(testAccount("b")))

	db, err := m.pool(context.Background())
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TRIGGER reject_boom BEFORE INSERT ON accounts
		WHEN NEW.id = 'boom'
		BEGIN SELECT RAISE(ABORT, 'rejected'); END
	`)
	require.NoError(t, err)

	// The sync would delete "b" and upsert "boom"; the injected failure
	// must roll back both.
	ok := m.SyncAccounts([]models.Account{testAccount("a"), testAccount("boom")})
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b"}, persistedIDs(t, m))
}

func TestDeleteAccount_UnknownIDIsNoop(t *testing.T) {
	m := newTestManager(t)

	require.True(t, m.SaveAccount(testAccount("a")))

	assert.True(t, m.DeleteAccount("nope"))
	assert.Equal(t, []string{"a"}, persistedIDs(t, m))

	assert.True(t, m.DeleteAccount("a"))
	assert.Empty(t, persistedIDs(t, m))
}

func TestDeleteAccounts_EmptyListIsNoopSuccess(t *testing.T) {
	m := newTestManager(t)

	assert.True(t, m.DeleteAccounts(nil))
	assert.True(t, m.DeleteAccounts([]string{}))
	assert.Equal(t, 0, poolBuilds(m))
}

func TestDeleteAccounts_RemovesManyRows(t *testing.T) {
	m := newTestManager(t)

	for _, id := range []string{"a", "b", "c"} {
		require.True(t, m.SaveAccount(testAccount(id)))
	}

	assert.True(t, m.DeleteAccounts([]string{"a", "c", "missing"}))
	assert.Equal(t, []string{"b"}, persistedIDs(t, m))
}

func TestLoadAccounts_OrderedByCreationTime(t *testing.T) {
	m := newTestManager(t)

	require.True(t, m.SaveAccount(testAccount("later-id-b")))
	time.Sleep(10 * time.Millisecond)
	require.True(t, m.SaveAccount(testAccount("earlier-id-a")))

	accounts := m.LoadAccounts()
	require.Len(t, accounts, 2)
	assert.Equal(t, "later-id-b", accounts[0].ID)
	assert.Equal(t, "earlier-id-a", accounts[1].ID)
}

func TestAccountsLastUpdated_NilWhenEmpty(t *testing.T) {
	m := newTestManager(t)

	ts, err := m.accountsLastUpdated(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ts)

	require.True(t, m.SaveAccount(testAccount("a")))
	got := m.AccountsLastUpdated()
	require.NotNil(t, got)
	assert.WithinDuration(t, time.Now().UTC(), *got, time.Minute)
}

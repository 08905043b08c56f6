package database

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenAndMigrate(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDatabaseInitialization(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	// second run is a no-op
	if err := db.RunMigrations(); err != nil {
		t.Fatalf("Re-running migrations failed: %v", err)
	}

	version, err := db.GetVersion()
	if err != nil {
		t.Fatalf("Failed to get version: %v", err)
	}
	if version != LatestVersion() {
		t.Errorf("Expected version %d, got %d", LatestVersion(), version)
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestAccountOperations(t *testing.T) {
	db := openTestDB(t)

	account, err := db.CreateAccount("5550100", "+1", "query_id=a")
	if err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	if !account.IsActive || account.IsBanned {
		t.Errorf("New account should be active and not banned: %+v", account)
	}

	byPhone, err := db.GetAccountByPhone("5550100")
	if err != nil {
		t.Fatalf("Failed to get account by phone: %v", err)
	}
	if byPhone.ID != account.ID {
		t.Errorf("Expected ID %d, got %d", account.ID, byPhone.ID)
	}

	// Upsert without a login param keeps the stored one
	updated, created, err := db.UpsertAccount("5550100", "+44", "")
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if created {
		t.Error("Upsert of an existing phone must not create")
	}
	if updated.AreaCode != "+44" || updated.LoginParam != "query_id=a" {
		t.Errorf("Unexpected upsert result: %+v", updated)
	}

	_, created, err = db.UpsertAccount("5550101", "+1", "")
	if err != nil || !created {
		t.Fatalf("Expected creation, got created=%v err=%v", created, err)
	}

	err = db.UpdateAccountMetadata(AccountMetadata{
		AccountID:     account.ID,
		AccessToken:   "tok",
		InviteLink:    "https://t.me/bot?start=r_1",
		FriendsCount:  4,
		Balance:       1200,
		ProfitPerHour: 33,
		League:        "silver",
	})
	if err != nil {
		t.Fatalf("Failed to update metadata: %v", err)
	}

	got, _ := db.GetAccountByID(account.ID)
	if got.AccessToken != "tok" || got.FriendsCount != 4 || got.LastAuthorizedAt == nil {
		t.Errorf("Metadata not persisted: %+v", got)
	}

	if err := db.MarkAccountBanned(account.ID, "banned upstream"); err != nil {
		t.Fatalf("Failed to ban: %v", err)
	}
	active, err := db.ListActiveAccounts()
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(active) != 1 || active[0].Phone != "5550101" {
		t.Errorf("Expected only the unbanned account active, got %d", len(active))
	}
	banned, _ := db.IsAccountBanned(account.ID)
	if !banned {
		t.Error("Expected account to be banned")
	}

	if _, err := db.GetAccountByID(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := db.SetAccountActive(999, false); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLoginInfoAndRequests(t *testing.T) {
	db := openTestDB(t)
	account, _ := db.CreateAccount("5550100", "+1", "")

	if _, err := db.LatestLoginInfo(account.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	if err := db.CreateLoginRequest("req-1", account.ID, 1); err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	pending, _ := db.ListPendingLoginRequests()
	if len(pending) != 1 || pending[0].Phone != "5550100" {
		t.Fatalf("Expected one pending request, got %+v", pending)
	}

	if err := db.SaveLoginInfo(account.ID, "query_id=new", "api"); err != nil {
		t.Fatalf("Failed to save login info: %v", err)
	}

	li, err := db.LatestLoginInfo(account.ID)
	if err != nil {
		t.Fatalf("Failed to read login info: %v", err)
	}
	if li.LoginParam != "query_id=new" || li.Source != "api" {
		t.Errorf("Unexpected login info: %+v", li)
	}

	got, _ := db.GetAccountByID(account.ID)
	if got.LoginParam != "query_id=new" {
		t.Errorf("Account login param not updated: %q", got.LoginParam)
	}

	pending, _ = db.ListPendingLoginRequests()
	if len(pending) != 0 {
		t.Errorf("Expected requests fulfilled, got %d", len(pending))
	}
}

func TestTelemetryAndErrors(t *testing.T) {
	db := openTestDB(t)
	account, _ := db.CreateAccount("5550100", "+1", "")

	for i := int64(1); i <= 3; i++ {
		err := db.RecordMining(MiningRecord{AccountID: account.ID, CycleID: "c1", EarnPerTap: 2, Count: 10 * i, Mined: 20 * i, RemainingEnergy: 100 - 20*i})
		if err != nil {
			t.Fatalf("Failed to record mining: %v", err)
		}
	}
	records, _ := db.ListMining(account.ID, 2)
	if len(records) != 2 || records[0].Count != 30 {
		t.Errorf("Expected newest two records, got %+v", records)
	}

	err := db.RecordUpgrade(UpgradeRecord{AccountID: account.ID, CardID: 7, CardName: "Exchange", Cost: "100000", Ratio: "200.00", BalanceAfter: 900000})
	if err != nil {
		t.Fatalf("Failed to record upgrade: %v", err)
	}
	upgrades, _ := db.ListUpgrades(account.ID, 10)
	if len(upgrades) != 1 || upgrades[0].Ratio != "200.00" {
		t.Errorf("Unexpected upgrades: %+v", upgrades)
	}

	id := account.ID
	if _, err := db.LogError(&id, "malformed_response", "high", "getMe: bad json"); err != nil {
		t.Fatalf("Failed to log error: %v", err)
	}
	if _, err := db.LogError(nil, "startup", "low", "no accounts"); err != nil {
		t.Fatalf("Failed to log error: %v", err)
	}
	errs, _ := db.GetRecentErrors(10)
	if len(errs) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(errs))
	}

	stats, _ := db.GetStats()
	if stats["mining_info"] != 3 || stats["upgrade_log"] != 1 {
		t.Errorf("Unexpected stats: %v", stats)
	}
}

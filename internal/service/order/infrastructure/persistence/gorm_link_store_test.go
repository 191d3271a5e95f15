package persistence

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"marketplace/internal/pkg/database"
	"marketplace/internal/service/order/infrastructure/storetest"
)

func TestGormLinkStoreContract(t *testing.T) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN not set, skipping MySQL link store tests")
	}
	db, err := database.Open(context.Background(), database.Options{DSN: dsn})
	if err != nil {
		t.Skipf("MySQL not reachable: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	require.NoError(t, database.Migrate(context.Background(), db, Models()...))

	storetest.RunLinkStoreContract(t, NewGormLinkStore(db))
}

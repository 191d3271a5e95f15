package memory

import (
	"testing"

	"marketplace/internal/service/inventory/infrastructure/storetest"
)

func TestStockStoreContract(t *testing.T) {
	storetest.RunStockStoreContract(t, NewStockStore())
}

func TestLedgerStoreContract(t *testing.T) {
	storetest.RunLedgerStoreContract(t, NewLedgerStore())
}

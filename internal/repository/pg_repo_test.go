package repository

import (
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
)

func TestNewPGRepositories(t *testing.T) {
	pool := &pgxpool.Pool{}
	assert.NotNil(t, NewFlightRepository(pool))
	assert.NotNil(t, NewBookingRepository(pool))
	assert.NotNil(t, NewSettlementRepository(pool))
	assert.NotNil(t, NewBalanceRepository(pool))
}

func TestMigrationsEmbedded(t *testing.T) {
	for _, schema := range []string{SchemaLedger, SchemaBalance} {
		ddl, err := migrations.ReadFile("migrations/" + schema + ".sql")
		assert.NoError(t, err)
		assert.Contains(t, string(ddl), "CREATE TABLE IF NOT EXISTS")
	}
}

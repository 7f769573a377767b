package database

import (
	"testing"

	"whatsapp-crm-lookup/internal/config"
	"whatsapp-crm-lookup/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	t.Run("sqlite in memory migrates settings table", func(t *testing.T) {
		db, err := Open(&config.Config{DBDriver: "sqlite", DBPath: ":memory:"})
		require.NoError(t, err)
		assert.True(t, db.Migrator().HasTable(&models.SystemSetting{}))
	})

	t.Run("postgres requires a url", func(t *testing.T) {
		_, err := Open(&config.Config{DBDriver: "postgres"})
		assert.ErrorContains(t, err, "DATABASE_URL")
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := Open(&config.Config{DBDriver: "mongo"})
		assert.ErrorContains(t, err, "unsupported")
	})
}

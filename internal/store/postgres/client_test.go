package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	t.Run("explicit DSN wins", func(t *testing.T) {
		cfg := ClientConfig{
			DSN:  "postgres://u:p@explicit:5432/db",
			Host: "ignored",
		}
		assert.Equal(t, "postgres://u:p@explicit:5432/db", DSN(cfg))
	})

	t.Run("built from fields with defaults", func(t *testing.T) {
		cfg := ClientConfig{
			Host:     "db.internal",
			Database: "carbondesk",
			User:     "carbondesk",
			Password: "pw",
		}
		assert.Equal(t,
			"postgres://carbondesk:pw@db.internal:5432/carbondesk?sslmode=disable",
			DSN(cfg))
	})

	t.Run("custom port and sslmode", func(t *testing.T) {
		cfg := ClientConfig{
			Host:     "db.internal",
			Port:     6432,
			Database: "carbondesk",
			User:     "u",
			Password: "p",
			SSLMode:  "require",
		}
		assert.Equal(t,
			"postgres://u:p@db.internal:6432/carbondesk?sslmode=require",
			DSN(cfg))
	})
}

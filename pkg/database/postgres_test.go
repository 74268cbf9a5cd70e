package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/course-billing-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "billing", Password: "secret", Name: "courses", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5433 user=billing password=secret dbname=courses sslmode=disable", dsn)
}

package sqlstore

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/jobpipe/internal/domain"
	"github.com/phrazzld/jobpipe/internal/store"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, MapError(nil, "get"))
	assert.ErrorIs(t, MapError(sql.ErrNoRows, "get"), store.ErrJobNotFound)
	assert.ErrorIs(t, MapError(&pgconn.PgError{Code: "23505"}, "create"), store.ErrAlreadyExists)

	err := MapError(errors.New("connection reset by peer"), "update")
	assert.ErrorIs(t, err, domain.ErrStorage)
	assert.Equal(t, domain.KindStorage, domain.KindOf(err))
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("other")))
}

package dataaccess_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bionicotaku/lingo-sqlmapper/dataaccess"
	"github.com/bionicotaku/lingo-sqlmapper/engine"
)

func TestTranslateClassifiesSQLState(t *testing.T) {
	tests := []struct {
		code string
		kind dataaccess.Kind
	}{
		{"23505", dataaccess.KindDuplicateKey},
		{"23503", dataaccess.KindDataIntegrity},
		{"40001", dataaccess.KindTransient},
		{"40P01", dataaccess.KindTransient},
		{"55P03", dataaccess.KindTransient},
		{"42601", dataaccess.KindBadGrammar},
		{"42501", dataaccess.KindPermissionDenied},
		{"57014", dataaccess.KindQueryTimeout},
		{"08006", dataaccess.KindResourceFailure},
		{"53300", dataaccess.KindResourceFailure},
		{"XX000", dataaccess.KindUncategorized},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: tt.code, Message: "boom"}
			err := dataaccess.Wrap("select", fmt.Errorf("exec: %w", pgErr))

			var de *dataaccess.Error
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.kind, de.Kind)
			assert.Equal(t, tt.code, de.SQLState)
			assert.Equal(t, "select", de.Op)
			// 原始错误仍可通过 errors.As 取出
			var cause *pgconn.PgError
			assert.ErrorAs(t, err, &cause)
		})
	}
}

func TestTranslateEngineErrors(t *testing.T) {
	assert.Equal(t, dataaccess.KindIncorrectResultSize, dataaccess.KindOf(dataaccess.Wrap("select_one", engine.ErrTooManyResults)))
	assert.Equal(t, dataaccess.KindInvalidUsage, dataaccess.KindOf(dataaccess.Wrap("select_one", fmt.Errorf("%w: x", engine.ErrStatementNotFound))))
	assert.Equal(t, dataaccess.KindInvalidUsage, dataaccess.KindOf(dataaccess.Wrap("select_one", engine.NewConfigError(nil, "bad"))))
	assert.Equal(t, dataaccess.KindQueryTimeout, dataaccess.KindOf(dataaccess.Wrap("select_one", context.DeadlineExceeded)))
	assert.Equal(t, dataaccess.KindUncategorized, dataaccess.KindOf(dataaccess.Wrap("select_one", errors.New("other"))))
}

func TestTranslatePassesThroughTranslated(t *testing.T) {
	first := dataaccess.Wrap("insert", &pgconn.PgError{Code: "23505"})
	second := dataaccess.Wrap("update", first)
	assert.Same(t, first, second)
	assert.Nil(t, dataaccess.Wrap("noop", nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, dataaccess.IsRetryable(dataaccess.Wrap("update", &pgconn.PgError{Code: "40001"})))
	assert.True(t, dataaccess.IsRetryable(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, dataaccess.IsRetryable(dataaccess.Wrap("update", &pgconn.PgError{Code: "23505"})))
	assert.False(t, dataaccess.IsRetryable(nil))
}

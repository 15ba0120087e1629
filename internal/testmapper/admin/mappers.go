// Package admin holds a mapper whose simple name collides with one in its
// parent package.
package admin

import (
	"context"

	"github.com/bionicotaku/lingo-sqlmapper/internal/testmapper"
)

// UserMapper counts administrator accounts.
//
//sqlmapper:Mapper
type UserMapper interface {
	testmapper.Mapper
	CountAdmins(ctx context.Context) (int64, error)
}

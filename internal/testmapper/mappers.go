package testmapper

import "context"

// Mapper marks mapper interfaces.
type Mapper interface{}

// UserMapper reads and renames users.
//
//sqlmapper:Mapper
type UserMapper interface {
	Mapper
	FindByID(ctx context.Context, id int64) (*User, error)
	ListAll(ctx context.Context) ([]User, error)
	Rename(ctx context.Context, id int64, name string) (int64, error)
	DatabaseName(ctx context.Context) (string, error)
}

// AuditMapper appends audit entries.
//
//sqlmapper:Mapper
//sqlmapper:Named auditLog
type AuditMapper interface {
	Record(ctx context.Context, action string) (int64, error)
}

// ReportMapper carries neither the annotation nor the marker.
type ReportMapper interface {
	CountUsers(ctx context.Context) (int64, error)
}

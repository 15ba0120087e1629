package datasource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// DatabaseIDProvider resolves the database id used to pick vendor specific
// statements while mapper files are parsed.
type DatabaseIDProvider interface {
	DatabaseID(ctx context.Context, ds DataSource) (string, error)
}

// VendorDatabaseIDProvider reads the product name from `select version()` and
// maps it through Properties. Without properties the product name itself is
// returned. With properties, the first key contained in the product name wins;
// no match yields an empty id.
type VendorDatabaseIDProvider struct {
	Properties map[string]string
}

// DatabaseID implements DatabaseIDProvider.
func (p VendorDatabaseIDProvider) DatabaseID(ctx context.Context, ds DataSource) (string, error) {
	if ds == nil {
		return "", errors.New("datasource: data source is required")
	}
	conn, err := ds.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("datasource: acquire for database id: %w", err)
	}
	defer conn.Release()

	var version string
	if err := conn.QueryRow(ctx, "select version()").Scan(&version); err != nil {
		return "", fmt.Errorf("datasource: version query: %w", err)
	}
	return p.match(productName(version)), nil
}

func (p VendorDatabaseIDProvider) match(product string) string {
	if len(p.Properties) == 0 {
		return product
	}
	keys := make([]string, 0, len(p.Properties))
	for k := range p.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lowered := strings.ToLower(product)
	for _, k := range keys {
		if strings.Contains(lowered, strings.ToLower(k)) {
			return p.Properties[k]
		}
	}
	return ""
}

// productName keeps the leading product token of a version banner, e.g.
// "PostgreSQL 16.2 on x86_64" -> "PostgreSQL".
func productName(version string) string {
	fields := strings.Fields(version)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

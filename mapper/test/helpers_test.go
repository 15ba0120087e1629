package mapper_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/require"

	"github.com/bionicotaku/lingo-sqlmapper/catalog"
	"github.com/bionicotaku/lingo-sqlmapper/engine"
	"github.com/bionicotaku/lingo-sqlmapper/internal/testmapper"
	"github.com/bionicotaku/lingo-sqlmapper/internal/testmapper/admin"
	"github.com/bionicotaku/lingo-sqlmapper/transaction"
)

const (
	fixturePkg = "github.com/bionicotaku/lingo-sqlmapper/internal/testmapper"
	adminPkg   = fixturePkg + "/admin"
)

// recordingLogger keeps warnings for assertions.
type recordingLogger struct {
	mu       sync.Mutex
	warnings []string
}

func (l *recordingLogger) Log(level log.Level, keyvals ...any) error {
	if level != log.LevelWarn {
		return nil
	}
	var b strings.Builder
	for i := 1; i < len(keyvals); i += 2 {
		fmt.Fprint(&b, keyvals[i])
	}
	l.mu.Lock()
	l.warnings = append(l.warnings, b.String())
	l.mu.Unlock()
	return nil
}

func (l *recordingLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range l.warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func newCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat := testmapper.NewCatalog()
	require.NoError(t, cat.Register(admin.Descriptors()...))
	return cat
}

func newFactory(t *testing.T, cat *catalog.Catalog) *engine.DefaultSessionFactory {
	t.Helper()
	cfg := engine.NewConfiguration()
	cfg.SetTypeResolver(cat)
	cfg.SetVFS(testmapper.Resources)
	env, err := engine.NewEnvironment("test", transaction.NewManagedFactory(nil), testmapper.UserDB())
	require.NoError(t, err)
	cfg.SetEnvironment(env)
	return engine.Build(cfg)
}

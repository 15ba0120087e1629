package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/bionicotaku/lingo-sqlmapper/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapperBuilderParsesStatements(t *testing.T) {
	cfg := newConfiguration(userDB())
	cfg.AddVariables(map[string]string{"schema": "app"})

	require.NoError(t, engine.NewMapperBuilder(cfg, "UserMapper.yaml").Parse([]byte(userMapperYAML)))

	ms, err := cfg.MappedStatement(engine.Namespace(userMapperType) + ".FindByID")
	require.NoError(t, err)
	assert.Equal(t, "select id, name, created_at from app.users where id = $1", ms.SQL())
	assert.Equal(t, []string{"id"}, ms.ParameterNames())
	assert.Equal(t, engine.StatementSelect, ms.Type)
	assert.True(t, ms.UseCache)
	assert.NotNil(t, ms.Cache)

	rename, err := cfg.MappedStatement(engine.Namespace(userMapperType) + ".Rename")
	require.NoError(t, err)
	assert.True(t, rename.FlushCache)
	assert.Equal(t, []string{"name", "id"}, rename.ParameterNames())

	// 命名空间对应的 mapper 接口会被自动注册
	assert.True(t, cfg.HasMapper(userMapperType))
}

func TestMapperBuilderRejectsMalformedResource(t *testing.T) {
	cfg := engine.NewConfiguration()
	err := engine.NewMapperBuilder(cfg, "broken.yaml").Parse([]byte("namespace: [unclosed"))
	var rerr *engine.ResourceError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "broken.yaml", rerr.Resource)

	err = engine.NewMapperBuilder(cfg, "nons.yaml").Parse([]byte("statements: []"))
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "nons.yaml", rerr.Resource)
}

func TestMapperBuilderDuplicateStatement(t *testing.T) {
	cfg := engine.NewConfiguration()
	doc := `
namespace: dup
statements:
  - {id: a, type: select, sql: select 1}
  - {id: a, type: select, sql: select 2}
`
	err := engine.NewMapperBuilder(cfg, "dup.yaml").Parse([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestDatabaseIDSelectsStatements(t *testing.T) {
	doc := `
namespace: vendor
statements:
  - {id: now, type: select, sql: select current_timestamp}
  - {id: now, type: select, databaseId: pg, sql: select now()}
  - {id: now, type: select, databaseId: mysql, sql: select sysdate()}
  - {id: mysqlOnly, type: select, databaseId: mysql, sql: select 1}
  - {id: portable, type: select, sql: select 2}
`
	tests := []struct {
		name       string
		databaseID string
		nowSQL     string
		hasMySQL   bool
	}{
		{"matching id wins", "pg", "select now()", false},
		{"other vendor", "mysql", "select sysdate()", true},
		{"no id uses untagged", "", "select current_timestamp", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := engine.NewConfiguration()
			cfg.SetDatabaseID(tt.databaseID)
			require.NoError(t, engine.NewMapperBuilder(cfg, "vendor.yaml").Parse([]byte(doc)))

			ms, err := cfg.MappedStatement("vendor.now")
			require.NoError(t, err)
			assert.Equal(t, tt.nowSQL, ms.SQL())
			assert.Equal(t, tt.hasMySQL, cfg.HasStatement("vendor.mysqlOnly"))
			assert.True(t, cfg.HasStatement("vendor.portable"))
		})
	}
}

func TestIncompleteStatementsResolveLater(t *testing.T) {
	cfg := engine.NewConfiguration()
	orders := `
namespace: orders
statements:
  - id: list
    type: select
    sql: select <include refid="shared.cols"/> from orders
`
	shared := `
namespace: shared
sql:
  - {id: cols, sql: "id, total"}
`
	require.NoError(t, engine.NewMapperBuilder(cfg, "orders.yaml").Parse([]byte(orders)))

	_, err := cfg.MappedStatementNames()
	require.ErrorIs(t, err, engine.ErrIncomplete)
	var ierr *engine.IncompleteError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, []string{"orders.list"}, ierr.Statements)

	require.NoError(t, engine.NewMapperBuilder(cfg, "shared.yaml").Parse([]byte(shared)))
	names, err := cfg.MappedStatementNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"orders.list"}, names)

	ms, err := cfg.MappedStatement("orders.list")
	require.NoError(t, err)
	assert.Equal(t, "select id, total from orders", ms.SQL())
}

func TestUnresolvedCacheRefIsIncomplete(t *testing.T) {
	cfg := engine.NewConfiguration()
	doc := `
namespace: reports
cacheRef: shared
statements:
  - {id: all, type: select, sql: select 1}
`
	require.NoError(t, engine.NewMapperBuilder(cfg, "reports.yaml").Parse([]byte(doc)))
	_, err := cfg.MappedStatementNames()
	require.ErrorIs(t, err, engine.ErrIncomplete)

	require.NoError(t, cfg.AddCache(engine.NewPerpetualCache("shared")))
	_, err = cfg.MappedStatementNames()
	require.NoError(t, err)
	ms, err := cfg.MappedStatement("reports.all")
	require.NoError(t, err)
	require.NotNil(t, ms.Cache)
	assert.Equal(t, "shared", ms.Cache.ID())
}

func TestAddMapperLoadsResourceFromVFS(t *testing.T) {
	cfg := newConfiguration(userDB())
	cfg.SetVFS(fstest.MapFS{
		"UserMapper.yaml": {Data: []byte(userMapperYAML)},
	})

	require.NoError(t, cfg.AddMapper(userMapperType))
	assert.True(t, cfg.HasMapper(userMapperType))
	assert.True(t, cfg.HasStatement(engine.Namespace(userMapperType)+".ListAll"))

	err := cfg.AddMapper(userMapperType)
	assert.ErrorIs(t, err, engine.ErrMapperKnown)
}

func TestAddMapperWithoutStatementsFails(t *testing.T) {
	cfg := newConfiguration(userDB())
	err := cfg.AddMapper(userMapperType)
	var cerr *engine.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, err.Error(), "FindByID")
	assert.False(t, cfg.HasMapper(userMapperType), "失败的 mapper 不应保留在注册表中")
}

func TestMapperProxyDispatchesStatements(t *testing.T) {
	ds := userDB()
	cfg := newConfiguration(ds)
	require.NoError(t, engine.NewMapperBuilder(cfg, "UserMapper.yaml").Parse([]byte(userMapperYAML)))

	ctx := context.Background()
	session, err := engine.Build(cfg).OpenSession(ctx)
	require.NoError(t, err)
	defer session.Close(ctx)

	v, err := session.GetMapper(userMapperType)
	require.NoError(t, err)
	users := v.(UserMapper)

	u, err := users.FindByID(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, User{ID: 7, Name: "ann", CreatedAt: created}, *u)

	missing, err := users.FindByID(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := users.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "bob", all[1].Name)

	n, err := users.Rename(ctx, 1, "anna")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	calls := ds.Conn().Calls()
	last := calls[len(calls)-1]
	assert.True(t, strings.HasPrefix(last.SQL, "update public.users"))
	assert.Equal(t, []any{"anna", int64(1)}, last.Args)
	assert.True(t, last.InTx)
}

func TestGetMapperUnknown(t *testing.T) {
	cfg := newConfiguration(userDB())
	session, err := engine.Build(cfg).OpenSession(context.Background())
	require.NoError(t, err)
	_, err = session.GetMapper(userMapperType)
	assert.ErrorIs(t, err, engine.ErrMapperUnknown)
}

func TestSessionSelectOneTooManyResults(t *testing.T) {
	cfg := newConfiguration(userDB())
	require.NoError(t, engine.NewMapperBuilder(cfg, "UserMapper.yaml").Parse([]byte(userMapperYAML)))
	ctx := context.Background()
	session, err := engine.Build(cfg).OpenSession(ctx)
	require.NoError(t, err)
	defer session.Close(ctx)

	var u User
	err = session.SelectOne(ctx, engine.Namespace(userMapperType)+".ListAll", nil, &u)
	assert.ErrorIs(t, err, engine.ErrTooManyResults)
}

func TestSessionSelectEachAndMaps(t *testing.T) {
	cfg := newConfiguration(userDB())
	require.NoError(t, engine.NewMapperBuilder(cfg, "UserMapper.yaml").Parse([]byte(userMapperYAML)))
	ctx := context.Background()
	session, err := engine.Build(cfg).OpenSession(ctx)
	require.NoError(t, err)
	defer session.Close(ctx)

	var names []string
	var row map[string]any
	err = session.SelectEach(ctx, engine.Namespace(userMapperType)+".ListAll", nil, &row, func() error {
		names = append(names, row["name"].(string))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ann", "bob"}, names)

	// 未声明 resultType 的 any 目标得到列映射
	var rows []any
	require.NoError(t, session.SelectList(ctx, engine.Namespace(userMapperType)+".ListAll", nil, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, int64(1), rows[0].(map[string]any)["id"])

	stop := errors.New("stop")
	count := 0
	err = session.SelectEach(ctx, engine.Namespace(userMapperType)+".ListAll", nil, &row, func() error {
		count++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, count)
}

func TestNamespaceCacheFlushedByWrites(t *testing.T) {
	ds := userDB()
	cfg := newConfiguration(ds)
	require.NoError(t, engine.NewMapperBuilder(cfg, "UserMapper.yaml").Parse([]byte(userMapperYAML)))
	ctx := context.Background()
	session, err := engine.Build(cfg).OpenSession(ctx)
	require.NoError(t, err)
	defer session.Close(ctx)

	list := engine.Namespace(userMapperType) + ".ListAll"
	var users []User
	require.NoError(t, session.SelectList(ctx, list, nil, &users))
	require.NoError(t, session.SelectList(ctx, list, nil, &users))
	assert.Len(t, ds.Conn().Calls(), 1, "第二次查询应命中缓存")

	_, err = session.Update(ctx, engine.Namespace(userMapperType)+".Rename", engine.Params{"id": int64(1), "name": "x"})
	require.NoError(t, err)
	require.NoError(t, session.SelectList(ctx, list, nil, &users))
	assert.Len(t, ds.Conn().Calls(), 3)
}

func TestInterceptorsRunInRegistrationOrder(t *testing.T) {
	ds := userDB()
	cfg := newConfiguration(ds)
	var order []string
	cfg.AddInterceptor(engine.InterceptorFunc(func(ctx context.Context, inv *engine.Invocation, next engine.Handler) (any, error) {
		order = append(order, "outer")
		inv.SQL = "/* traced */ " + inv.SQL
		return next(ctx, inv)
	}))
	cfg.AddInterceptor(engine.InterceptorFunc(func(ctx context.Context, inv *engine.Invocation, next engine.Handler) (any, error) {
		order = append(order, "inner:"+inv.Op)
		return next(ctx, inv)
	}))
	require.NoError(t, engine.NewMapperBuilder(cfg, "UserMapper.yaml").Parse([]byte(userMapperYAML)))

	ctx := context.Background()
	session, err := engine.Build(cfg).OpenSession(ctx)
	require.NoError(t, err)
	defer session.Close(ctx)

	_, err = session.Update(ctx, engine.Namespace(userMapperType)+".Rename", engine.Params{"id": int64(1), "name": "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner:update"}, order)
	assert.True(t, strings.HasPrefix(ds.Conn().Calls()[0].SQL, "/* traced */ update"))
}

func TestDirectTransactionLifecycle(t *testing.T) {
	ds := userDB()
	cfg := newConfiguration(ds)
	require.NoError(t, engine.NewMapperBuilder(cfg, "UserMapper.yaml").Parse([]byte(userMapperYAML)))
	ctx := context.Background()

	session, err := engine.Build(cfg).OpenSession(ctx)
	require.NoError(t, err)
	_, err = session.Update(ctx, engine.Namespace(userMapperType)+".Rename", engine.Params{"id": int64(1), "name": "x"})
	require.NoError(t, err)
	require.NoError(t, session.Commit(ctx))
	require.NoError(t, session.Close(ctx))

	assert.Equal(t, 1, ds.Acquired())
	assert.Equal(t, 1, ds.Conn().Begun())
	assert.Equal(t, 1, ds.Conn().Commits())
	assert.Equal(t, 0, ds.Conn().Rollbacks())
	assert.Equal(t, 1, ds.Conn().Released())

	_, err = session.Insert(ctx, engine.Namespace(userMapperType)+".Rename", nil)
	assert.ErrorIs(t, err, engine.ErrSessionClosed)
}

func TestOpenSessionWithoutEnvironment(t *testing.T) {
	_, err := engine.Build(engine.NewConfiguration()).OpenSession(context.Background())
	assert.ErrorIs(t, err, engine.ErrNoEnvironment)
}

func TestConfigBuilder(t *testing.T) {
	cfg := newConfiguration(userDB())
	cfg.AddVariables(map[string]string{"schema": "external"})
	cfg.SetVFS(fstest.MapFS{
		"mappers/user.yaml": {Data: []byte(userMapperYAML)},
	})
	doc := `
properties:
  schema: fromfile
  region: eu
settings:
  mapUnderscoreToCamelCase: true
  defaultStatementTimeout: 5s
typeAliases:
  Person: example.com/model.User
mappers:
  - resource: mappers/user.yaml
`
	require.NoError(t, engine.NewConfigBuilder(cfg, "config.yaml").Parse([]byte(doc)))

	vars := cfg.Variables()
	assert.Equal(t, "external", vars["schema"], "外部属性优先于文件属性")
	assert.Equal(t, "eu", vars["region"])
	assert.True(t, cfg.Settings().MapUnderscoreToCamelCase)
	assert.True(t, cfg.Settings().CacheEnabled)
	assert.Equal(t, "5s", cfg.Settings().DefaultStatementTimeout.String())

	alias, err := cfg.TypeAliasRegistry().Resolve("person")
	require.NoError(t, err)
	assert.Equal(t, "User", alias.Name())

	ms, err := cfg.MappedStatement(engine.Namespace(userMapperType) + ".ListAll")
	require.NoError(t, err)
	assert.Contains(t, ms.SQL(), "from external.users")
}

func TestConfigBuilderMissingMapperResource(t *testing.T) {
	cfg := engine.NewConfiguration()
	cfg.SetVFS(fstest.MapFS{})
	err := engine.NewConfigBuilder(cfg, "config.yaml").Parse([]byte("mappers:\n  - resource: nope.yaml\n"))
	var rerr *engine.ResourceError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "nope.yaml", rerr.Resource)
}

type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) Log(level log.Level, keyvals ...any) error {
	l.lines = append(l.lines, level.String()+" "+fmt.Sprint(keyvals...))
	return nil
}

// TestUnboundNamespaceIsLogged 验证命名空间绑定失败时记录警告而不是静默丢弃
func TestUnboundNamespaceIsLogged(t *testing.T) {
	cfg := newConfiguration(userDB())
	logger := &recordingLogger{}
	cfg.SetLogger(logger)
	doc := `
namespace: ` + engine.Namespace(userMapperType) + `
statements:
  - id: FindByID
    type: select
    sql: select id from users where id = #{id}
`
	require.NoError(t, engine.NewMapperBuilder(cfg, "partial.yaml").Parse([]byte(doc)))
	assert.False(t, cfg.HasMapper(userMapperType))

	require.Len(t, logger.lines, 1)
	assert.Contains(t, logger.lines[0], "WARN")
	assert.Contains(t, logger.lines[0], "partial.yaml")
	assert.Contains(t, logger.lines[0], "ListAll")
}

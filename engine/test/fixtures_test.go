package engine_test

import (
	"context"
	"reflect"
	"time"

	"github.com/bionicotaku/lingo-sqlmapper/engine"
	"github.com/bionicotaku/lingo-sqlmapper/internal/fakedb"
)

type User struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

type UserMapper interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	ListAll(ctx context.Context) ([]User, error)
	Rename(ctx context.Context, id int64, name string) (int64, error)
}

// userMapperBinding is what the generator emits for UserMapper.
type userMapperBinding struct {
	inv engine.Invoker
}

func (m userMapperBinding) FindByID(ctx context.Context, id int64) (*User, error) {
	var out *User
	err := m.inv.Invoke(ctx, "FindByID", &out, engine.Params{"id": id})
	return out, err
}

func (m userMapperBinding) ListAll(ctx context.Context) ([]User, error) {
	var out []User
	err := m.inv.Invoke(ctx, "ListAll", &out, nil)
	return out, err
}

func (m userMapperBinding) Rename(ctx context.Context, id int64, name string) (int64, error) {
	var out int64
	err := m.inv.Invoke(ctx, "Rename", &out, engine.Params{"id": id, "name": name})
	return out, err
}

var userMapperType = reflect.TypeOf((*UserMapper)(nil)).Elem()

type staticResolver struct {
	types map[string]reflect.Type
	binds map[reflect.Type]engine.BindFunc
}

func newResolver() *staticResolver {
	return &staticResolver{
		types: map[string]reflect.Type{
			engine.Namespace(userMapperType): userMapperType,
			"example.com/model.User":         reflect.TypeOf(User{}),
		},
		binds: map[reflect.Type]engine.BindFunc{
			userMapperType: func(inv engine.Invoker) any { return userMapperBinding{inv: inv} },
		},
	}
}

func (r *staticResolver) ResolveType(name string) (reflect.Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

func (r *staticResolver) ResolveMapper(t reflect.Type) (engine.BindFunc, bool) {
	b, ok := r.binds[t]
	return b, ok
}

var userMapperYAML = `
namespace: ` + engine.Namespace(userMapperType) + `
cache: true
sql:
  - id: columns
    sql: id, name, created_at
statements:
  - id: FindByID
    type: select
    resultType: example.com/model.User
    sql: 'select <include refid="columns"/> from ${schema:public}.users where id = #{id}'
  - id: ListAll
    type: select
    sql: select <include refid="columns"/> from ${schema:public}.users order by id
  - id: Rename
    type: update
    sql: 'update ${schema:public}.users set name = #{name} where id = #{id}'
`

var created = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// userDB answers the UserMapper statements.
func userDB() *fakedb.DataSource {
	conn := fakedb.NewConn(func(sql string, args []any) fakedb.Result {
		cols := []string{"id", "name", "created_at"}
		switch {
		case len(sql) >= 6 && sql[:6] == "update":
			return fakedb.Result{Tag: "UPDATE 1"}
		case len(args) == 1 && args[0] == int64(404):
			return fakedb.Result{Columns: cols}
		case len(args) == 1:
			return fakedb.Result{Columns: cols, Rows: [][]any{{args[0], "ann", created}}}
		default:
			return fakedb.Result{Columns: cols, Rows: [][]any{
				{int64(1), "ann", created},
				{int64(2), "bob", created},
			}}
		}
	})
	return fakedb.NewDataSource(conn)
}

func newConfiguration(ds *fakedb.DataSource) *engine.Configuration {
	cfg := engine.NewConfiguration()
	cfg.SetTypeResolver(newResolver())
	env, err := engine.NewEnvironment("test", engine.DirectTransactionFactory{}, ds)
	if err != nil {
		panic(err)
	}
	cfg.SetEnvironment(env)
	return cfg
}

package registry_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bionicotaku/lingo-sqlmapper/registry"
)

type store struct {
	name string
}

type service struct {
	prefix string
	store  *store
	inited bool
}

var storeType = reflect.TypeOf((*store)(nil))

func (s *service) SetProperty(name string, value any) error {
	switch name {
	case "prefix":
		s.prefix = value.(string)
	case "store":
		st, ok := value.(*store)
		if !ok {
			return fmt.Errorf("store must be *store, got %T", value)
		}
		s.store = st
	default:
		return fmt.Errorf("unknown property %q", name)
	}
	return nil
}

func (s *service) Dependencies() []registry.Dependency {
	return []registry.Dependency{{Property: "store", Type: storeType}}
}

func (s *service) Satisfied(property string) bool { return s.store != nil }

func (s *service) AfterPropertiesSet(context.Context) error {
	if s.store == nil {
		return errors.New("store is required")
	}
	s.inited = true
	return nil
}

// greeting is a factory object producing a string.
type greeting struct {
	calls  int
	single bool
}

func (g *greeting) Object(context.Context) (any, error) {
	g.calls++
	return fmt.Sprintf("hello #%d", g.calls), nil
}

func (g *greeting) ObjectType() reflect.Type { return reflect.TypeOf("") }
func (g *greeting) IsSingleton() bool        { return g.single }

type lifecycle struct {
	name   string
	events *[]string
	fail   error
}

func (l *lifecycle) OnReady(context.Context) error {
	*l.events = append(*l.events, "ready:"+l.name)
	return l.fail
}

func (l *lifecycle) Dispose(context.Context) error {
	*l.events = append(*l.events, "dispose:"+l.name)
	return nil
}

func newRegistry() *registry.Registry {
	r := registry.New(nil)
	r.RegisterClass("store", func(_ context.Context, args []any) (any, error) {
		name := "default"
		if len(args) > 0 {
			name = args[0].(string)
		}
		return &store{name: name}, nil
	})
	r.RegisterClass("service", func(_ context.Context, args []any) (any, error) {
		s := &service{}
		if len(args) > 0 {
			s.store, _ = args[0].(*store)
		}
		return s, nil
	})
	return r
}

// TestRegisterRejectsDuplicateNames 验证组件名称唯一
func TestRegisterRejectsDuplicateNames(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register(&registry.Definition{Name: "db", Class: "store"}))
	assert.ErrorIs(t, r.Register(&registry.Definition{Name: "db", Class: "store"}), registry.ErrDuplicateDefinition)
	assert.ErrorIs(t, r.RegisterSingleton("db", &store{}), registry.ErrDuplicateDefinition)
	assert.Error(t, r.Register(&registry.Definition{Name: "noclass"}))
	assert.Error(t, r.Register(&registry.Definition{Class: "store"}))

	assert.True(t, r.Contains("db"))
	assert.False(t, r.Contains("other"))
	assert.Equal(t, []string{"db"}, r.Names())
}

// TestConstructorArgsAndProperties 验证构造参数引用与属性注入
func TestConstructorArgsAndProperties(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register(&registry.Definition{Name: "db", Class: "store", ConstructorArgs: []any{"primary"}}))
	svcDef := &registry.Definition{Name: "svc", Class: "service"}
	svcDef.AddConstructorArg(registry.Ref{Name: "db"})
	svcDef.SetProperty("prefix", "v1")
	require.NoError(t, r.Register(svcDef))

	require.NoError(t, r.Refresh(context.Background()))

	v, err := r.Get(context.Background(), "svc")
	require.NoError(t, err)
	svc := v.(*service)
	assert.Equal(t, "primary", svc.store.name)
	assert.Equal(t, "v1", svc.prefix)
	assert.True(t, svc.inited)

	db, err := r.Get(context.Background(), "db")
	require.NoError(t, err)
	assert.Same(t, svc.store, db)
}

// TestDefinitionProperties 验证属性的设置、覆盖与移除
func TestDefinitionProperties(t *testing.T) {
	def := &registry.Definition{Name: "svc", Class: "service"}
	def.SetProperty("a", 1)
	def.SetProperty("b", 2)
	def.SetProperty("a", 3)
	v, ok := def.Property("a")
	require.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Len(t, def.Properties, 2)

	def.RemoveProperty("a")
	_, ok = def.Property("a")
	assert.False(t, ok)
	assert.Equal(t, []registry.Property{{Name: "b", Value: 2}}, def.Properties)
}

// TestAutowireByType 验证按类型自动装配唯一候选
func TestAutowireByType(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.RegisterSingleton("db", &store{name: "single"}))
	require.NoError(t, r.Register(&registry.Definition{Name: "svc", Class: "service", Autowire: registry.AutowireByType}))
	require.NoError(t, r.Refresh(context.Background()))

	v, err := r.Get(context.Background(), "svc")
	require.NoError(t, err)
	assert.Equal(t, "single", v.(*service).store.name)
}

// TestAutowireWithoutCandidateLeavesPropertyUnset 验证无候选时属性保持未设置
func TestAutowireWithoutCandidateLeavesPropertyUnset(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register(&registry.Definition{Name: "svc", Class: "service", Autowire: registry.AutowireByType}))

	err := r.Refresh(context.Background())
	var cerr *registry.CreationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "svc", cerr.Name)
	assert.Contains(t, err.Error(), "store is required")
}

// TestAutowireAmbiguous 验证多个候选时装配失败
func TestAutowireAmbiguous(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register(&registry.Definition{Name: "a", Class: "store", Type: storeType}))
	require.NoError(t, r.Register(&registry.Definition{Name: "b", Class: "store", Type: storeType}))
	require.NoError(t, r.Register(&registry.Definition{Name: "svc", Class: "service", Autowire: registry.AutowireByType}))

	err := r.Refresh(context.Background())
	require.ErrorIs(t, err, registry.ErrNoUniqueComponent)
	assert.Contains(t, err.Error(), "candidates=a, b")
}

// TestAutowireSkipsSatisfiedDependency 验证已显式设置的依赖不会被自动装配覆盖
func TestAutowireSkipsSatisfiedDependency(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register(&registry.Definition{Name: "a", Class: "store", ConstructorArgs: []any{"a"}}))
	require.NoError(t, r.Register(&registry.Definition{Name: "b", Class: "store", ConstructorArgs: []any{"b"}}))
	svc := &registry.Definition{Name: "svc", Class: "service", Autowire: registry.AutowireByType}
	svc.SetProperty("store", registry.Ref{Name: "b"})
	require.NoError(t, r.Register(svc))

	require.NoError(t, r.Refresh(context.Background()))
	v, err := r.Get(context.Background(), "svc")
	require.NoError(t, err)
	assert.Equal(t, "b", v.(*service).store.name)
}

// TestFactoryObjectProducts 验证工厂对象返回产品且可用前缀取回工厂本身
func TestFactoryObjectProducts(t *testing.T) {
	r := registry.New(nil)
	single := &greeting{single: true}
	prototype := &greeting{}
	require.NoError(t, r.RegisterSingleton("single", single))
	require.NoError(t, r.RegisterSingleton("prototype", prototype))
	require.NoError(t, r.Refresh(context.Background()))
	ctx := context.Background()

	assert.Equal(t, 0, single.calls, "产品按需创建")

	first, err := r.Get(ctx, "single")
	require.NoError(t, err)
	second, err := r.Get(ctx, "single")
	require.NoError(t, err)
	assert.Equal(t, "hello #1", first)
	assert.Equal(t, first, second)

	p1, _ := r.Get(ctx, "prototype")
	p2, _ := r.Get(ctx, "prototype")
	assert.NotEqual(t, p1, p2)

	factory, err := r.Get(ctx, registry.FactoryPrefix+"single")
	require.NoError(t, err)
	assert.Same(t, single, factory)

	assert.ElementsMatch(t, []string{"single", "prototype"}, r.NamesForType(reflect.TypeOf("")))
	_, err = r.GetByType(ctx, reflect.TypeOf(""))
	assert.ErrorIs(t, err, registry.ErrNoUniqueComponent)
}

// TestGetByType 验证按类型获取唯一组件
func TestGetByType(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register(&registry.Definition{Name: "db", Class: "store", Type: storeType}))
	require.NoError(t, r.Refresh(context.Background()))

	v, err := r.GetByType(context.Background(), storeType)
	require.NoError(t, err)
	assert.Equal(t, "default", v.(*store).name)

	_, err = r.GetByType(context.Background(), reflect.TypeOf(0))
	assert.ErrorIs(t, err, registry.ErrNoSuchComponent)

	_, err = r.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, registry.ErrNoSuchComponent)
}

// TestCircularReference 验证循环引用被检测
func TestCircularReference(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register(&registry.Definition{Name: "a", Class: "service", ConstructorArgs: []any{registry.Ref{Name: "b"}}}))
	require.NoError(t, r.Register(&registry.Definition{Name: "b", Class: "service", ConstructorArgs: []any{registry.Ref{Name: "a"}}}))
	assert.ErrorIs(t, r.Refresh(context.Background()), registry.ErrCircularReference)
}

// TestUnknownClass 验证未注册构造器的类被拒绝
func TestUnknownClass(t *testing.T) {
	r := registry.New(nil)
	require.NoError(t, r.Register(&registry.Definition{Name: "x", Class: "nope"}))
	assert.ErrorIs(t, r.Refresh(context.Background()), registry.ErrUnknownClass)
}

// TestRegistrarsRunBeforeInstantiation 验证注册器在实例化之前追加定义
func TestRegistrarsRunBeforeInstantiation(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.Register(&registry.Definition{Name: "svc", Class: "service", Autowire: registry.AutowireByType}))
	r.AddRegistrar(registry.RegistrarFunc(func(_ context.Context, reg *registry.Registry) error {
		return reg.Register(&registry.Definition{Name: "db", Class: "store", Type: storeType})
	}))

	require.NoError(t, r.Refresh(context.Background()))
	v, err := r.Get(context.Background(), "svc")
	require.NoError(t, err)
	assert.NotNil(t, v.(*service).store)

	assert.ErrorIs(t, r.Refresh(context.Background()), registry.ErrAlreadyRefreshed)
}

// TestRegistrarFailureAbortsRefresh 验证注册器失败中止刷新
func TestRegistrarFailureAbortsRefresh(t *testing.T) {
	r := newRegistry()
	boom := errors.New("boom")
	r.AddRegistrar(registry.RegistrarFunc(func(context.Context, *registry.Registry) error { return boom }))
	assert.ErrorIs(t, r.Refresh(context.Background()), boom)
}

// TestReadyAndDispose 验证就绪通知与逆序释放
func TestReadyAndDispose(t *testing.T) {
	var events []string
	r := registry.New(nil)
	require.NoError(t, r.RegisterSingleton("first", &lifecycle{name: "first", events: &events}))
	require.NoError(t, r.RegisterSingleton("second", &lifecycle{name: "second", events: &events}))

	require.NoError(t, r.Refresh(context.Background()))
	require.NoError(t, r.Close(context.Background()))
	assert.Equal(t, []string{"ready:first", "ready:second", "dispose:second", "dispose:first"}, events)
}

// TestReadyFailure 验证就绪回调失败以创建错误返回
func TestReadyFailure(t *testing.T) {
	var events []string
	boom := errors.New("not ready")
	r := registry.New(nil)
	require.NoError(t, r.RegisterSingleton("bad", &lifecycle{name: "bad", events: &events, fail: boom}))

	err := r.Refresh(context.Background())
	var cerr *registry.CreationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "bad", cerr.Name)
	assert.ErrorIs(t, err, boom)
}

// TestAutowireModeString 验证装配模式的字符串形式
func TestAutowireModeString(t *testing.T) {
	assert.Equal(t, "no", registry.AutowireNo.String())
	assert.Equal(t, "by_type", registry.AutowireByType.String())
}

// node 自动装配另一个同类型组件
type node struct {
	peer *node
}

var nodeType = reflect.TypeOf((*node)(nil))

func (n *node) SetProperty(name string, value any) error {
	n.peer = value.(*node)
	return nil
}

func (n *node) Dependencies() []registry.Dependency {
	return []registry.Dependency{{Property: "peer", Type: nodeType}}
}

func (n *node) Satisfied(string) bool { return n.peer != nil }

// TestSharedReferenceBuiltOnce 验证被多处引用的组件只由容器构建一次
func TestSharedReferenceBuiltOnce(t *testing.T) {
	r := registry.New(nil)
	built := 0
	r.RegisterClass("store", func(context.Context, []any) (any, error) {
		built++
		return &store{name: fmt.Sprintf("store-%d", built)}, nil
	})
	r.RegisterClass("service", func(_ context.Context, args []any) (any, error) {
		return &service{store: args[0].(*store)}, nil
	})
	for _, name := range []string{"first", "second"} {
		def := &registry.Definition{Name: name, Class: "service"}
		def.AddConstructorArg(registry.Ref{Name: "db"})
		require.NoError(t, r.Register(def))
	}
	require.NoError(t, r.Register(&registry.Definition{Name: "db", Class: "store"}))

	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, 1, built)

	first, err := r.Get(context.Background(), "first")
	require.NoError(t, err)
	second, err := r.Get(context.Background(), "second")
	require.NoError(t, err)
	assert.Same(t, first.(*service).store, second.(*service).store)
	assert.Equal(t, "store-1", first.(*service).store.name)
}

// TestAutowireCycleDetected 验证按类型装配形成的循环被检测
func TestAutowireCycleDetected(t *testing.T) {
	r := registry.New(nil)
	r.RegisterClass("node", func(context.Context, []any) (any, error) { return &node{}, nil })
	require.NoError(t, r.Register(&registry.Definition{Name: "a", Class: "node", Type: nodeType, Autowire: registry.AutowireByType}))
	require.NoError(t, r.Register(&registry.Definition{Name: "b", Class: "node", Type: nodeType, Autowire: registry.AutowireByType}))

	err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, registry.ErrCircularReference)
	var cerr *registry.CreationError
	assert.ErrorAs(t, err, &cerr)
}

// TestReferenceToMissingComponent 验证引用不存在的组件在刷新时失败
func TestReferenceToMissingComponent(t *testing.T) {
	r := newRegistry()
	def := &registry.Definition{Name: "svc", Class: "service"}
	def.SetProperty("store", registry.Ref{Name: "ghost"})
	require.NoError(t, r.Register(def))

	err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, registry.ErrNoSuchComponent)
	var cerr *registry.CreationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "svc", cerr.Name)
}

// TestFactoryReferenceInjectsFactory 验证带前缀的引用注入工厂本身
func TestFactoryReferenceInjectsFactory(t *testing.T) {
	r := registry.New(nil)
	g := &greeting{single: true}
	require.NoError(t, r.RegisterSingleton("greeting", g))
	var got []any
	r.RegisterClass("holder", func(_ context.Context, args []any) (any, error) {
		got = args
		return &store{}, nil
	})
	def := &registry.Definition{Name: "holder", Class: "holder"}
	def.AddConstructorArg(registry.Ref{Name: registry.FactoryPrefix + "greeting"})
	def.AddConstructorArg(registry.Ref{Name: "greeting"})
	require.NoError(t, r.Register(def))

	require.NoError(t, r.Refresh(context.Background()))
	require.Len(t, got, 2)
	assert.Same(t, g, got[0])
	assert.Equal(t, "hello #1", got[1])
}

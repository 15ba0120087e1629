package mapper_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bionicotaku/lingo-sqlmapper/catalog"
	"github.com/bionicotaku/lingo-sqlmapper/internal/testmapper"
	"github.com/bionicotaku/lingo-sqlmapper/internal/testmapper/admin"
	"github.com/bionicotaku/lingo-sqlmapper/mapper"
	"github.com/bionicotaku/lingo-sqlmapper/registry"
	"github.com/bionicotaku/lingo-sqlmapper/template"
)

// counter is a marker with methods; ReportMapper satisfies it.
type counter interface {
	CountUsers(ctx context.Context) (int64, error)
}

func defNames(defs []*registry.Definition) []string {
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Name)
	}
	return out
}

func newScanner(t *testing.T, cat *catalog.Catalog) (*mapper.ClassPathScanner, *registry.Registry, *recordingLogger) {
	t.Helper()
	logger := &recordingLogger{}
	reg := registry.New(logger)
	return mapper.NewClassPathScanner(reg, cat, logger), reg, logger
}

// TestScanWithoutFiltersRegistersEveryInterface 验证无过滤器时每个公开接口注册一次
func TestScanWithoutFiltersRegistersEveryInterface(t *testing.T) {
	s, reg, logger := newScanner(t, newCatalog(t))
	s.RegisterFilters()

	defs, err := s.Scan(context.Background(), fixturePkg)
	require.NoError(t, err)
	assert.Equal(t, []string{"auditLog", "mapper", "reportMapper", "userMapper"}, defNames(defs))
	assert.False(t, reg.Contains("package-info"))
	assert.False(t, reg.Contains("user"), "结构体不是候选")
	assert.True(t, logger.contains("a component with the same name is already defined"), "子包同名接口被跳过")

	def, ok := reg.Definition("userMapper")
	require.True(t, ok)
	assert.Equal(t, []any{fixturePkg + ".UserMapper"}, def.ConstructorArgs)
}

// TestScanExcludesPackageInfo 验证包描述符不会被注册
func TestScanExcludesPackageInfo(t *testing.T) {
	cat := catalog.New()
	require.NoError(t, cat.Register(
		catalog.TypeDescriptor{Package: "com/example/mappers", Name: catalog.PackageInfoName},
		catalog.TypeDescriptor{Package: "com/example/mappers", Name: "UserMapper", Type: catalog.TypeOf[testmapper.UserMapper]()},
	))
	s, _, _ := newScanner(t, cat)
	s.RegisterFilters()

	defs, err := s.Scan(context.Background(), "com/example/mappers")
	require.NoError(t, err)
	assert.Equal(t, []string{"userMapper"}, defNames(defs))
}

// TestScanAnnotationFilter 验证注解过滤只注册带注解的接口
func TestScanAnnotationFilter(t *testing.T) {
	s, _, _ := newScanner(t, newCatalog(t))
	s.AnnotationClass = "Mapper"
	s.RegisterFilters()

	defs, err := s.Scan(context.Background(), fixturePkg)
	require.NoError(t, err)
	assert.Equal(t, []string{"auditLog", "userMapper"}, defNames(defs))
}

// TestScanEmptyMarkerMatchesEmbedders 验证空标记接口按内嵌匹配且不包含自身
func TestScanEmptyMarkerMatchesEmbedders(t *testing.T) {
	s, _, _ := newScanner(t, newCatalog(t))
	s.MarkerInterface = catalog.TypeOf[testmapper.Mapper]()
	s.RegisterFilters()

	defs, err := s.Scan(context.Background(), adminPkg, fixturePkg)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "userMapper", defs[0].Name)
	assert.Equal(t, []any{adminPkg + ".UserMapper"}, defs[0].ConstructorArgs)
}

// TestScanMarkerWithMethods 验证非空标记接口按实现关系匹配
func TestScanMarkerWithMethods(t *testing.T) {
	s, _, _ := newScanner(t, newCatalog(t))
	s.MarkerInterface = reflect.TypeOf((*counter)(nil)).Elem()
	s.RegisterFilters()

	defs, err := s.Scan(context.Background(), fixturePkg)
	require.NoError(t, err)
	assert.Equal(t, []string{"reportMapper"}, defNames(defs))
}

// TestScanAnnotationAndMarkerAreAlternatives 验证注解与标记过滤器任一匹配即可
func TestScanAnnotationAndMarkerAreAlternatives(t *testing.T) {
	s, _, _ := newScanner(t, newCatalog(t))
	s.AnnotationClass = "Mapper"
	s.MarkerInterface = reflect.TypeOf((*counter)(nil)).Elem()
	s.RegisterFilters()

	defs, err := s.Scan(context.Background(), fixturePkg)
	require.NoError(t, err)
	assert.Equal(t, []string{"auditLog", "reportMapper", "userMapper"}, defNames(defs))
}

// TestScanNothingFound 验证未找到候选时仅记录警告
func TestScanNothingFound(t *testing.T) {
	s, reg, logger := newScanner(t, newCatalog(t))
	s.RegisterFilters()

	defs, err := s.Scan(context.Background(), "example.com/empty")
	require.NoError(t, err)
	assert.Empty(t, defs)
	assert.Empty(t, reg.Names())
	assert.True(t, logger.contains("no mapper was found in '[example.com/empty]' package"))
}

// TestScanSkipsUnloadedTypes 验证加载失败的类型被跳过并记录警告
func TestScanSkipsUnloadedTypes(t *testing.T) {
	cat := catalog.New()
	require.NoError(t, cat.Register(catalog.TypeDescriptor{
		Package: "example.com/broken", Name: "PageMapper", Kind: catalog.KindInterface,
		Err: "generic types cannot be registered",
	}))
	s, reg, logger := newScanner(t, cat)
	s.RegisterFilters()

	defs, err := s.Scan(context.Background(), "example.com/broken")
	require.NoError(t, err)
	assert.Empty(t, defs)
	assert.False(t, reg.Contains("pageMapper"))
	assert.True(t, logger.contains("type failed to load: generic types cannot be registered"))
}

// TestCandidatesIncludeUnloadedTypes 验证候选列表包含加载失败的类型且不注册组件
func TestCandidatesIncludeUnloadedTypes(t *testing.T) {
	cat := catalog.New()
	require.NoError(t, cat.Register(
		catalog.TypeDescriptor{
			Package: "example.com/broken", Name: "PageMapper", Kind: catalog.KindInterface,
			Err: "generic types cannot be registered",
		},
		catalog.TypeDescriptor{
			Package: "example.com/broken", Name: "OrderMapper", Kind: catalog.KindInterface,
			Annotations: []catalog.Annotation{{Name: "Mapper"}},
		},
		catalog.TypeDescriptor{Package: "example.com/broken", Name: "Order", Kind: catalog.KindStruct},
	))
	s, reg, _ := newScanner(t, cat)
	s.RegisterFilters()

	got := s.Candidates("example.com/broken")
	require.Len(t, got, 2)
	assert.Equal(t, "OrderMapper", got[0].Name)
	assert.Equal(t, "PageMapper", got[1].Name)
	assert.False(t, got[1].Loaded())
	assert.False(t, reg.Contains("orderMapper"))
}

// TestScanDefaultsToAutowire 验证未显式指定会话来源时按类型自动装配
func TestScanDefaultsToAutowire(t *testing.T) {
	s, _, _ := newScanner(t, newCatalog(t))
	s.RegisterFilters()

	defs, err := s.Scan(context.Background(), adminPkg)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	def := defs[0]
	assert.Equal(t, mapper.FactoryBeanClass, def.Class)
	assert.Equal(t, registry.AutowireByType, def.Autowire)
	v, ok := def.Property(mapper.PropertyAddToConfig)
	require.True(t, ok)
	assert.Equal(t, true, v)
	_, ok = def.Property(mapper.PropertySessionFactory)
	assert.False(t, ok)
	_, ok = def.Property(mapper.PropertySessionTemplate)
	assert.False(t, ok)
}

// TestScanExplicitSessionSources 验证显式会话来源的优先级
func TestScanExplicitSessionSources(t *testing.T) {
	cat := newCatalog(t)
	factory := newFactory(t, cat)
	tmpl, err := template.New(factory, template.Config{}, template.Dependencies{})
	require.NoError(t, err)

	tests := []struct {
		name         string
		configure    func(s *mapper.ClassPathScanner)
		wantFactory  any
		wantTemplate any
		warned       bool
	}{
		{
			name:        "factory name",
			configure:   func(s *mapper.ClassPathScanner) { s.SessionFactoryBeanName = "sf" },
			wantFactory: registry.Ref{Name: "sf"},
		},
		{
			name: "factory name wins over factory instance",
			configure: func(s *mapper.ClassPathScanner) {
				s.SessionFactoryBeanName = "sf"
				s.SessionFactory = factory
			},
			wantFactory: registry.Ref{Name: "sf"},
		},
		{
			name:        "factory instance",
			configure:   func(s *mapper.ClassPathScanner) { s.SessionFactory = factory },
			wantFactory: factory,
		},
		{
			name:         "template name",
			configure:    func(s *mapper.ClassPathScanner) { s.SessionTemplateBeanName = "tmpl" },
			wantTemplate: registry.Ref{Name: "tmpl"},
		},
		{
			name: "template name wins over template instance",
			configure: func(s *mapper.ClassPathScanner) {
				s.SessionTemplateBeanName = "tmpl"
				s.SessionTemplate = tmpl
			},
			wantTemplate: registry.Ref{Name: "tmpl"},
		},
		{
			name: "template wins over factory names",
			configure: func(s *mapper.ClassPathScanner) {
				s.SessionFactoryBeanName = "sf"
				s.SessionTemplateBeanName = "tmpl"
			},
			wantTemplate: registry.Ref{Name: "tmpl"},
			warned:       true,
		},
		{
			name: "template instance wins over factory instance",
			configure: func(s *mapper.ClassPathScanner) {
				s.SessionFactory = factory
				s.SessionTemplate = tmpl
			},
			wantTemplate: tmpl,
			warned:       true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, logger := newScanner(t, cat)
			tt.configure(s)
			s.RegisterFilters()

			defs, err := s.Scan(context.Background(), adminPkg)
			require.NoError(t, err)
			require.Len(t, defs, 1)
			def := defs[0]
			assert.Equal(t, registry.AutowireNo, def.Autowire)

			gotFactory, hasFactory := def.Property(mapper.PropertySessionFactory)
			gotTemplate, hasTemplate := def.Property(mapper.PropertySessionTemplate)
			if tt.wantFactory != nil {
				require.True(t, hasFactory)
				assert.Equal(t, tt.wantFactory, gotFactory)
			} else {
				assert.False(t, hasFactory, "不应保留会话工厂属性")
			}
			if tt.wantTemplate != nil {
				require.True(t, hasTemplate)
				assert.Equal(t, tt.wantTemplate, gotTemplate)
			} else {
				assert.False(t, hasTemplate)
			}
			assert.Equal(t, tt.warned, logger.contains("cannot use both sessionTemplate and sessionFactory together"))
		})
	}
}

// TestScanFactoryBeanClassOverride 验证可替换注册使用的工厂类
func TestScanFactoryBeanClassOverride(t *testing.T) {
	s, _, _ := newScanner(t, newCatalog(t))
	s.FactoryBeanClass = "example.com/custom.FactoryBean"
	s.AddToConfig = false
	s.NameGenerator = mapper.FullNameGenerator{}
	s.RegisterFilters()

	defs, err := s.Scan(context.Background(), adminPkg)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, adminPkg+".UserMapper", defs[0].Name)
	assert.Equal(t, "example.com/custom.FactoryBean", defs[0].Class)
	v, _ := defs[0].Property(mapper.PropertyAddToConfig)
	assert.Equal(t, false, v)
}

// TestScanExcludeFilter 验证自定义排除过滤器
func TestScanExcludeFilter(t *testing.T) {
	s, _, _ := newScanner(t, newCatalog(t))
	s.AddExcludeFilter(func(d catalog.TypeDescriptor) bool { return d.Name == "ReportMapper" })
	s.RegisterFilters()

	defs, err := s.Scan(context.Background(), fixturePkg)
	require.NoError(t, err)
	assert.NotContains(t, defNames(defs), "reportMapper")
	assert.Contains(t, defNames(defs), "userMapper")
}

// TestScannedMapperRoundTrip 验证扫描注册的 mapper 经容器解析后委托给会话
func TestScannedMapperRoundTrip(t *testing.T) {
	cat := newCatalog(t)
	factory := newFactory(t, cat)
	s, reg, _ := newScanner(t, cat)
	require.NoError(t, reg.RegisterSingleton("sessionFactory", factory))
	s.AnnotationClass = "Mapper"
	s.RegisterFilters()

	_, err := s.Scan(context.Background(), fixturePkg)
	require.NoError(t, err)
	require.NoError(t, reg.Refresh(context.Background()))
	ctx := context.Background()

	v, err := reg.Get(ctx, "userMapper")
	require.NoError(t, err)
	users, ok := v.(testmapper.UserMapper)
	require.True(t, ok)

	u, err := users.FindByID(ctx, 11)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, int64(11), u.ID)

	again, err := reg.Get(ctx, "userMapper")
	require.NoError(t, err)
	assert.Equal(t, v, again, "mapper 为单例")

	fb, err := reg.Get(ctx, registry.FactoryPrefix+"userMapper")
	require.NoError(t, err)
	bean, ok := fb.(*mapper.FactoryBean)
	require.True(t, ok)
	assert.Same(t, factory, bean.SessionFactory())
	assert.Equal(t, catalog.TypeOf[testmapper.UserMapper](), bean.ObjectType())

	audit, err := reg.Get(ctx, "auditLog")
	require.NoError(t, err)
	n, err := audit.(testmapper.AuditMapper).Record(ctx, "login")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.True(t, factory.Configuration().HasMapper(catalog.TypeOf[testmapper.UserMapper]()))

	byType, err := reg.GetByType(ctx, catalog.TypeOf[testmapper.UserMapper]())
	require.NoError(t, err)
	assert.Equal(t, v, byType)
}

// TestOverlappingScansKeepFirstRegistration 验证重叠扫描时保留首个同名注册
func TestOverlappingScansKeepFirstRegistration(t *testing.T) {
	cat := newCatalog(t)
	factory := newFactory(t, cat)
	logger := &recordingLogger{}
	reg := registry.New(logger)
	require.NoError(t, reg.RegisterSingleton("sessionFactory", factory))

	first := mapper.NewClassPathScanner(reg, cat, logger)
	first.MarkerInterface = catalog.TypeOf[testmapper.Mapper]()
	first.RegisterFilters()
	_, err := first.Scan(context.Background(), adminPkg)
	require.NoError(t, err)

	second := mapper.NewClassPathScanner(reg, cat, logger)
	second.MarkerInterface = catalog.TypeOf[testmapper.Mapper]()
	second.RegisterFilters()
	defs, err := second.Scan(context.Background(), fixturePkg)
	require.NoError(t, err)
	assert.Empty(t, defs, "子包中的同名接口已注册")
	assert.True(t, logger.contains("skipping factory bean with name 'userMapper'"))

	require.NoError(t, reg.Refresh(context.Background()))
	v, err := reg.Get(context.Background(), "userMapper")
	require.NoError(t, err)
	_, isAdmin := v.(admin.UserMapper)
	assert.True(t, isAdmin, "首个注册仍可解析")
}

// TestScannersWithSeparateCatalogsShareRegistry 验证不同目录的扫描器注册到同一容器后都能解析
func TestScannersWithSeparateCatalogsShareRegistry(t *testing.T) {
	logger := &recordingLogger{}
	reg := registry.New(logger)
	require.NoError(t, reg.RegisterSingleton("sessionFactory", newFactory(t, newCatalog(t))))

	first := mapper.NewClassPathScanner(reg, testmapper.NewCatalog(), logger)
	first.AnnotationClass = "Mapper"
	first.RegisterFilters()
	_, err := first.Scan(context.Background(), fixturePkg)
	require.NoError(t, err)

	adminCat := catalog.New()
	require.NoError(t, adminCat.Register(admin.Descriptors()...))
	second := mapper.NewClassPathScanner(reg, adminCat, logger)
	second.NameGenerator = mapper.NameGeneratorFunc(func(d catalog.TypeDescriptor) string { return "admin" + d.Name })
	second.RegisterFilters()
	defs, err := second.Scan(context.Background(), adminPkg)
	require.NoError(t, err)
	require.Equal(t, []string{"adminUserMapper"}, defNames(defs))

	require.NoError(t, reg.Refresh(context.Background()))

	v, err := reg.Get(context.Background(), "adminUserMapper")
	require.NoError(t, err)
	_, isAdmin := v.(admin.UserMapper)
	assert.True(t, isAdmin)

	v, err = reg.Get(context.Background(), "userMapper")
	require.NoError(t, err)
	_, isUser := v.(testmapper.UserMapper)
	assert.True(t, isUser)
}

package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/go-kratos/kratos/v2/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bionicotaku/lingo-sqlmapper/catalog"
	"github.com/bionicotaku/lingo-sqlmapper/mapper"
	"github.com/bionicotaku/lingo-sqlmapper/registry"
	"github.com/bionicotaku/lingo-sqlmapper/sessionfactory"
)

// app checks that every scanned mapper method has a statement in the built
// session factory.
type app struct {
	scan    scanConfig
	factory *sessionfactory.Component
	catalog *catalog.Catalog
	sources []catalog.SourcePackage
	logger  log.Logger
	log     *log.Helper
}

func newApp(scan scanConfig, factory *sessionfactory.Component, cat *catalog.Catalog, sources []catalog.SourcePackage, logger log.Logger) *app {
	return &app{
		scan:    scan,
		factory: factory,
		catalog: cat,
		sources: sources,
		logger:  logger,
		log:     log.NewHelper(logger),
	}
}

type problem struct {
	Subject string
	Reason  string
}

type report struct {
	Statements []string
	Mappers    []string
	Problems   []problem
}

// OK reports whether nothing is missing.
func (r report) OK() bool { return len(r.Problems) == 0 }

func (a *app) check(ctx context.Context) (rep report, err error) {
	_, span := otel.Tracer("github.com/bionicotaku/lingo-sqlmapper/cmd/sqlmapper-check").Start(ctx, "sqlmapper.check")
	defer func() {
		span.SetAttributes(
			attribute.Int("sqlmapper.mappers", len(rep.Mappers)),
			attribute.Int("sqlmapper.problems", len(rep.Problems)),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	for _, sp := range a.sources {
		if sp.Err != nil {
			rep.Problems = append(rep.Problems, problem{Subject: sp.Path, Reason: sp.Err.Error()})
		}
	}

	cfg := a.factory.Factory.Configuration()
	names, err := cfg.MappedStatementNames()
	if err != nil {
		return rep, err
	}
	rep.Statements = names

	methods := make(map[string][]string)
	for _, sp := range a.sources {
		for _, st := range sp.Types {
			for _, fn := range st.Methods {
				methods[st.FullName()] = append(methods[st.FullName()], fn.Name())
			}
		}
	}

	// A private registry keeps the scanner's filters without registering
	// anything the check would have to build.
	scanner := mapper.NewClassPathScanner(registry.New(a.logger), a.catalog, a.logger)
	scanner.AnnotationClass = a.scan.Annotation
	scanner.RegisterFilters()
	for _, d := range scanner.Candidates(a.scan.BasePackages...) {
		if d.Err != "" {
			rep.Problems = append(rep.Problems, problem{Subject: d.FullName(), Reason: d.Err})
			continue
		}
		rep.Mappers = append(rep.Mappers, d.FullName())
		for _, m := range methods[d.FullName()] {
			if !cfg.HasStatement(d.FullName() + "." + m) {
				rep.Problems = append(rep.Problems, problem{
					Subject: d.FullName() + "." + m,
					Reason:  "no mapped statement",
				})
			}
		}
	}
	sort.Slice(rep.Problems, func(i, j int) bool { return rep.Problems[i].Subject < rep.Problems[j].Subject })
	a.log.Infof("sqlmapper-check: checked mappers=%d statements=%d problems=%d", len(rep.Mappers), len(rep.Statements), len(rep.Problems))
	return rep, nil
}

func printReport(w io.Writer, rep report) {
	_, _ = fmt.Fprintf(w, "statements (%d):\n", len(rep.Statements))
	for _, s := range rep.Statements {
		_, _ = fmt.Fprintf(w, "  %s\n", s)
	}
	_, _ = fmt.Fprintf(w, "mappers (%d):\n", len(rep.Mappers))
	for _, m := range rep.Mappers {
		_, _ = fmt.Fprintf(w, "  %s\n", m)
	}
	if rep.OK() {
		_, _ = fmt.Fprintln(w, "ok")
		return
	}
	_, _ = fmt.Fprintf(w, "problems (%d):\n", len(rep.Problems))
	for _, p := range rep.Problems {
		_, _ = fmt.Fprintf(w, "  %s: %s\n", p.Subject, p.Reason)
	}
}

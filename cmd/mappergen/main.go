// Command mappergen writes zz_sqlmapper_gen.go into every loaded package: the
// catalog descriptors of its exported types and the bindings that implement
// its mapper interfaces.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"

	"github.com/bionicotaku/lingo-sqlmapper/catalog"
)

const defaultOutput = "zz_sqlmapper_gen.go"

var errStale = errors.New("generated files are out of date")

func main() {
	var (
		dir    = flag.String("dir", ".", "加载包时使用的工作目录")
		output = flag.String("out", defaultOutput, "每个包内生成文件的文件名")
		check  = flag.Bool("check", false, "只检查生成文件是否最新，不写入")
	)
	flag.Parse()

	patterns := flag.Args()
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}
	logger := log.NewHelper(log.With(log.NewStdLogger(os.Stderr), "cmd", "mappergen"))

	if err := generate(context.Background(), logger, *dir, *output, *check, patterns); err != nil {
		exitWithErr("%v", err)
	}
}

func generate(ctx context.Context, logger *log.Helper, dir, output string, check bool, patterns []string) error {
	pkgs, err := catalog.LoadSource(ctx, dir, patterns...)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	stale := make([]bool, len(pkgs))
	for i, sp := range pkgs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := render(sp)
			if err != nil {
				return err
			}
			if data == nil {
				logger.Debugf("mappergen: nothing to generate package=%s", sp.Path)
				return nil
			}
			target := filepath.Join(sp.Dir, output)
			if check {
				existing, err := os.ReadFile(target)
				if err != nil || !bytes.Equal(existing, data) {
					logger.Warnf("mappergen: stale file=%s", target)
					stale[i] = true
				}
				return nil
			}
			if err := os.WriteFile(target, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", target, err)
			}
			logger.Infof("mappergen: wrote file=%s types=%d", target, len(sp.Types))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, s := range stale {
		if s {
			return errStale
		}
	}
	return nil
}

func exitWithErr(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "mappergen: "+format+"\n", args...)
	os.Exit(1)
}

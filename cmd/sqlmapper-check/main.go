// Command sqlmapper-check builds the session factory described by a
// configuration file with fail-fast enabled and verifies that every mapper
// interface found in the scanned packages has a statement for each method.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/joho/godotenv"

	"github.com/bionicotaku/lingo-sqlmapper/logging"
	"github.com/bionicotaku/lingo-sqlmapper/observability"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var (
		confPath = flag.String("conf", "sqlmapper.yaml", "配置文件路径")
		envFile  = flag.String("env", ".env", "可选的 .env 文件，用于展开配置中的环境变量")
		offline  = flag.Bool("offline", false, "不连接数据库，跳过 databaseId 解析")
		logFmt   = flag.String("log-format", logging.FormatText, "日志格式：text 或 json")
		exporter = flag.String("telemetry", observability.ExporterNone, "遥测导出器：none、stdout 或 otlp_grpc")
		endpoint = flag.String("otlp-endpoint", "", "otlp_grpc 导出器的地址")
	)
	flag.Parse()

	// .env 不存在时忽略
	_ = godotenv.Load(*envFile)

	cfg, err := loadConfig(*confPath)
	if err != nil {
		exitWithErr("%v", err)
	}
	// Every statement is resolved up front; incomplete ones fail the build.
	cfg.SessionFactory.FailFast = true

	logComp, _, err := logging.NewComponent(logging.Config{
		Format:  *logFmt,
		Service: "sqlmapper-check",
		Version: version,
		Writer:  os.Stderr,
	})
	if err != nil {
		exitWithErr("%v", err)
	}
	logger := logComp.Logger

	ctx := context.Background()
	shutdown, err := observability.Init(ctx, observability.Config{
		Exporter:       *exporter,
		Endpoint:       *endpoint,
		Insecure:       true,
		ServiceName:    "sqlmapper-check",
		ServiceVersion: version,
	}, logger)
	if err != nil {
		exitWithErr("telemetry: %v", err)
	}
	var (
		a       *app
		cleanup func()
	)
	if *offline {
		a, cleanup, err = wireOfflineApp(ctx, cfg, logger)
	} else {
		a, cleanup, err = wireApp(ctx, cfg, logger)
	}
	if err != nil {
		exitWithErr("build: %v", err)
	}

	ok, err := run(ctx, a)
	cleanup()
	if serr := shutdown(ctx); serr != nil {
		log.NewHelper(logger).Warnf("telemetry shutdown: %v", serr)
	}
	if err != nil {
		exitWithErr("check: %v", err)
	}
	if !ok {
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app) (bool, error) {
	rep, err := a.check(ctx)
	if err != nil {
		return false, err
	}
	printReport(os.Stdout, rep)
	return rep.OK(), nil
}

func exitWithErr(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "sqlmapper-check: "+format+"\n", args...)
	os.Exit(1)
}

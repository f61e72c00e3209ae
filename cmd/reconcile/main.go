// Command reconcile compares the content store with the posts table and
// prints a YAML report of orphan files and posts whose file is missing.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"lenscape/internal/bootstrap"
	"lenscape/internal/config"
	"lenscape/internal/middleware"
	"lenscape/internal/repository"
	"lenscape/internal/service"

	"gopkg.in/yaml.v3"
)

func main() {
	prune := flag.Bool("prune", false, "Remove orphan files older than -grace")
	grace := flag.Duration("grace", service.DefaultOrphanGracePeriod, "Minimum orphan age before -prune removes it")
	out := flag.String("o", "", "Write the report to this file instead of stdout")
	failOnDrift := flag.Bool("fail-on-drift", false, "Exit with status 2 when the report is not clean")
	flag.Parse()

	// stdout carries the report
	middleware.Logger = middleware.NewLoggerTo(os.Stderr, os.Getenv("APP_ENV"))

	clean, err := run(*prune, *grace, *out)
	if err != nil {
		middleware.Logger.Error("reconcile failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *failOnDrift && !clean {
		os.Exit(2)
	}
}

// run scans and optionally prunes, writes the report and reports whether it was clean.
func run(prune bool, grace time.Duration, out string) (bool, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return false, fmt.Errorf("loading configuration: %w", err)
	}
	middleware.Logger = middleware.NewLoggerTo(os.Stderr, cfg.Env)

	rt, err := bootstrap.InitRuntime(cfg, bootstrap.Options{})
	if err != nil {
		return false, err
	}
	defer func() { _ = rt.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	rec := service.NewReconciler(repository.NewPostRepository(rt.DB), rt.Store)
	report, err := rec.Scan(ctx)
	if err != nil {
		return false, err
	}
	if prune {
		rec.Prune(ctx, report, grace)
	}

	var w io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return false, fmt.Errorf("creating report file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	if err := writeReport(w, report); err != nil {
		return false, err
	}
	return report.Clean(), nil
}

func writeReport(w io.Writer, report *service.ReconcileReport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}

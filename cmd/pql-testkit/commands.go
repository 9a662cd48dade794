package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/atomicdeploy/pql-testkit/pkg/dbcheck"
	"github.com/atomicdeploy/pql-testkit/pkg/exporter"
	"github.com/atomicdeploy/pql-testkit/pkg/generator"
	"github.com/atomicdeploy/pql-testkit/pkg/registration"
	"github.com/atomicdeploy/pql-testkit/pkg/runner"
	"github.com/atomicdeploy/pql-testkit/pkg/server"
	"github.com/atomicdeploy/pql-testkit/pkg/testdata"
)

const shutdownTimeout = 5 * time.Second

func runSuite(cmd *cobra.Command, args []string) {
	cfg, log := loadConfig()
	opts := generatorOptions(cmd)
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	reportFile, _ := cmd.Flags().GetString("report")

	var reportFormat exporter.ExportFormat
	if reportFile != "" {
		var err error
		if reportFormat, err = exporter.FormatFromPath(reportFile); err != nil {
			errorColor.Printf("❌ %v\n", err)
			os.Exit(1)
		}
	}

	suite, err := generator.New(loadCatalog(cfg), opts).Generate(args...)
	if err != nil {
		errorColor.Printf("❌ Failed to generate: %v\n", err)
		os.Exit(1)
	}
	infoColor.Printf("🚦 Running %d test cases against %s\n", suite.Total, cfg.Endpoint)

	ctx, stop := signalContext()
	defer stop()

	r := runner.New(newClient(cfg, log), concurrency, log)
	r.OnOutcome = func(o runner.Outcome) {
		if o.Passed {
			successColor.Printf("✅ %-18s %-16s %4dms %d items\n", o.Case.ID, o.Case.Category, o.Latency.Milliseconds(), o.Items)
			return
		}
		errorColor.Printf("❌ %-18s %-16s %s\n", o.Case.ID, o.Case.Category, o.Error)
	}

	report, err := r.Run(ctx, suite)
	if err != nil {
		warningColor.Printf("⚠️  Run interrupted: %v\n", err)
	}

	fmt.Println()
	successColor.Println("📊 Run Summary")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	infoColor.Printf("🆔 Run: %s\n", report.ID)
	infoColor.Printf("⏱️  Duration: %s\n", report.Duration.Round(time.Millisecond))
	successColor.Printf("✅ Passed: %d\n", report.Passed)
	if report.Failed > 0 {
		errorColor.Printf("❌ Failed: %d\n", report.Failed)
	}
	fmt.Println()

	if reportFile != "" {
		if err := exporter.NewExporter().ExportReport(report, reportFormat, reportFile); err != nil {
			errorColor.Printf("❌ Failed to write report: %v\n", err)
			os.Exit(1)
		}
		successColor.Printf("✅ Report written to: %s\n", reportFile)
	}

	if report.Failed > 0 || report.Incomplete {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, log := loadConfig()
	addr, _ := cmd.Flags().GetString("addr")
	watchFile, _ := cmd.Flags().GetBool("watch")
	debounceStr, _ := cmd.Flags().GetString("debounce")
	origins, _ := cmd.Flags().GetStringSlice("allow-origin")

	srv, err := server.NewServer(server.Config{
		SchemaPath:     cfg.SchemaFile,
		Client:         newClient(cfg, log),
		Logger:         log,
		AllowedOrigins: origins,
	})
	if err != nil {
		errorColor.Printf("❌ Failed to create server: %v\n", err)
		os.Exit(1)
	}
	defer srv.Close()

	switch {
	case watchFile && cfg.SchemaFile != "":
		if err := srv.StartWatching(parseDebounceDuration(debounceStr)); err != nil {
			errorColor.Printf("❌ Failed to start file watching: %v\n", err)
			os.Exit(1)
		}
		infoColor.Printf("👀 Watching schema: %s\n", cfg.SchemaFile)
	case watchFile:
		infoColor.Println("ℹ️  Using built-in API catalog, nothing to watch")
	}

	ctx, stop := signalContext()
	defer stop()

	successColor.Printf("🌐 Server running at http://localhost%s\n", addr)
	infoColor.Println("📝 Press Ctrl+C to stop the server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		errorColor.Printf("❌ Server error: %v\n", err)
		os.Exit(1)
	}
	infoColor.Println("👋 Server stopped")
}

// loadFixture reads and validates the registration fixture.
func loadFixture(path string) *testdata.Fixture {
	fx, err := testdata.Load(path)
	if err != nil {
		errorColor.Printf("❌ Failed to load test data: %v\n", err)
		errorColor.Println("💡 Create one with: pql-testkit testdata")
		os.Exit(1)
	}
	return fx
}

func runDBCheck(cmd *cobra.Command, args []string) {
	cfg, log := loadConfig()

	var username string
	if len(args) == 1 {
		username = args[0]
	} else {
		username = loadFixture(cfg.TestDataFile).UserData.FirstName
		infoColor.Printf("ℹ️  Using user_data.first_name from %s\n", cfg.TestDataFile)
	}

	ctx, stop := signalContext()
	defer stop()

	infoColor.Printf("🔍 Connecting to %s database\n", cfg.DBDriver)
	db, dialect, err := dbcheck.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		errorColor.Printf("❌ Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	report, err := dbcheck.NewValidator(db, dialect, log).Check(ctx, username)
	if err != nil {
		errorColor.Printf("❌ Database error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	successColor.Printf("🗄️  Account checks for %s\n", report.Username)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	for _, s := range report.Steps {
		if s.Passed {
			successColor.Printf("✅ %-20s %s\n", s.Name, s.Message)
		} else {
			errorColor.Printf("❌ %-20s %s\n", s.Name, s.Message)
		}
	}
	fmt.Println()

	if !report.Passed() {
		os.Exit(1)
	}
	successColor.Println("✨ Account is fully provisioned")
}

func runRegister(cmd *cobra.Command, args []string) {
	cfg, log := loadConfig()
	submit, _ := cmd.Flags().GetBool("submit")
	headless, _ := cmd.Flags().GetBool("headless")

	fx := loadFixture(cfg.TestDataFile)

	ctx, stop := signalContext()
	defer stop()

	infoColor.Println("🌍 Launching browser...")
	page, err := registration.NewRodPage(ctx, headless)
	if err != nil {
		errorColor.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	defer page.Close()

	flow := &registration.Flow{
		Page:     page,
		URL:      cfg.RegistrationURL,
		Submit:   submit,
		Timeouts: registration.DefaultTimeouts,
		Log:      log,
	}
	res, err := flow.Run(ctx, fx)

	fmt.Println()
	if res != nil {
		for _, s := range res.Steps {
			if s.Err != "" {
				errorColor.Printf("❌ %-22s %s\n", s.Name, s.Err)
				continue
			}
			successColor.Printf("✅ %-22s %s\n", s.Name, s.Detail)
		}
		fmt.Println()
	}
	if err != nil {
		errorColor.Printf("❌ Registration failed: %v\n", err)
		os.Exit(1)
	}

	if res.Submitted {
		successColor.Printf("✨ Registered %s\n", fx.UserData.Username)
		infoColor.Println("💡 Verify the account with: pql-testkit dbcheck")
		return
	}
	warningColor.Println("⚠️  Form filled but not submitted (use --submit)")
}

func runTestData(cmd *cobra.Command, args []string) {
	cfg, _ := loadConfig()
	seed, _ := cmd.Flags().GetUint64("seed")
	out, _ := cmd.Flags().GetString("out")

	if out == "" {
		out = cfg.TestDataFile
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	fx := testdata.Fake(seed)
	if err := fx.Save(out); err != nil {
		errorColor.Printf("❌ Failed to write test data: %v\n", err)
		os.Exit(1)
	}

	successColor.Printf("✅ Test data written to: %s\n", out)
	infoColor.Printf("👤 %s %s (%s), seed %d\n", fx.UserData.FirstName, fx.UserData.LastName, fx.UserData.Username, seed)
}

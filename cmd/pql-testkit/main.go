package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/atomicdeploy/pql-testkit/pkg/client"
	"github.com/atomicdeploy/pql-testkit/pkg/config"
	"github.com/atomicdeploy/pql-testkit/pkg/exporter"
	"github.com/atomicdeploy/pql-testkit/pkg/generator"
	"github.com/atomicdeploy/pql-testkit/pkg/pql"
	"github.com/atomicdeploy/pql-testkit/pkg/schema"
	"github.com/atomicdeploy/pql-testkit/pkg/watcher"
)

var (
	// Version information
	Version   = "1.0.0"
	BuildDate = "unknown"

	// Global flags
	schemaFile string
	envFile    string
	verbose    bool

	// Color definitions
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warningColor = color.New(color.FgYellow)
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pql-testkit",
		Short: "🧪 PQL test case generator and practice_query toolkit",
		Long: `
╔═══════════════════════════════════════════════════════════╗
║              🧪 PQL Testkit - Query Test Suite            ║
║   Deterministic PQL test cases for every practice API     ║
╚═══════════════════════════════════════════════════════════╝

Generates PQL test cases from the API catalog, runs them against the
practice_query endpoint and serves an interactive query dashboard.
Also drives the SAI registration page and verifies the resulting account.
`,
		Version: Version,
	}

	rootCmd.PersistentFlags().StringVarP(&schemaFile, "schema", "s", "", "Path to API catalog (.json, .yaml); defaults to SCHEMA_FILE or the built-in catalog")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "Path to .env file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	apisCmd := &cobra.Command{
		Use:   "apis",
		Short: "📋 List catalog APIs and their fields",
		Args:  cobra.NoArgs,
		Run:   runAPIs,
	}
	apisCmd.Flags().StringP("api", "a", "", "Show the fields of one API")

	generateCmd := &cobra.Command{
		Use:   "generate [api...]",
		Short: "🧬 Generate PQL test cases",
		Long: `🧬 Generate PQL test cases for the named APIs, or for every API in the catalog.

The same seed and catalog always produce the same suite, and the cases of an
API do not depend on which other APIs are generated with it.

Examples:
  pql-testkit generate                          # all APIs, text to stdout
  pql-testkit generate patients -o cases.xlsx   # one API to Excel
  pql-testkit generate --category join,union --seed 42 -f json`,
		Run: runGenerate,
	}
	generateCmd.Flags().Int64("seed", generator.DefaultSeed, "Random seed")
	generateCmd.Flags().StringSlice("category", nil, "Only generate these categories (comma separated)")
	generateCmd.Flags().StringP("format", "f", "", "Output format (json, csv, xlsx, text); inferred from --out when empty")
	generateCmd.Flags().StringP("out", "o", "", "Output file (stdout when empty)")
	generateCmd.Flags().Int("limit", 0, "Page size in generated requests (default 50)")
	generateCmd.Flags().BoolP("watch", "w", false, "Regenerate when the schema file changes")
	generateCmd.Flags().StringP("debounce", "d", "1s", "Debounce duration for watch mode (e.g., 0s, 500ms, 1s)")

	queryCmd := &cobra.Command{
		Use:   "query [pql]",
		Short: "🔎 Run one PQL query against practice_query",
		Args:  cobra.ExactArgs(1),
		Run:   runQuery,
	}
	queryCmd.Flags().Int("limit", 50, "Page size")
	queryCmd.Flags().Int("offset", 0, "Page offset")
	queryCmd.Flags().String("csv", "", "Write result items to this CSV file")

	runCmd := &cobra.Command{
		Use:   "run [api...]",
		Short: "🚦 Generate and execute test cases",
		Run:   runSuite,
	}
	runCmd.Flags().Int64("seed", generator.DefaultSeed, "Random seed")
	runCmd.Flags().StringSlice("category", nil, "Only run these categories (comma separated)")
	runCmd.Flags().IntP("concurrency", "c", 4, "Number of requests in flight")
	runCmd.Flags().StringP("report", "r", "", "Write the run report to this file (.json, .csv, .xlsx)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "🌐 Start the query dashboard",
		Args:  cobra.NoArgs,
		Run:   runServe,
	}
	serveCmd.Flags().StringP("addr", "a", ":8080", "Server address (e.g., :8080)")
	serveCmd.Flags().BoolP("watch", "w", true, "Reload the schema file when it changes")
	serveCmd.Flags().StringP("debounce", "d", "0s", "Debounce duration for watch mode (e.g., 0s, 500ms, 1s)")
	serveCmd.Flags().StringSlice("allow-origin", nil, "Extra WebSocket origins to accept")

	dbcheckCmd := &cobra.Command{
		Use:   "dbcheck [username]",
		Short: "🗄️  Verify a registered account in the database",
		Args:  cobra.MaximumNArgs(1),
		Run:   runDBCheck,
	}

	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "📝 Fill the SAI registration form in a browser",
		Args:  cobra.NoArgs,
		Run:   runRegister,
	}
	registerCmd.Flags().Bool("submit", false, "Click Register at the end")
	registerCmd.Flags().Bool("headless", false, "Run the browser without a window")

	testdataCmd := &cobra.Command{
		Use:   "testdata",
		Short: "🎲 Write a fake registration fixture",
		Args:  cobra.NoArgs,
		Run:   runTestData,
	}
	testdataCmd.Flags().Uint64("seed", 0, "Fixture seed (0 picks one from the clock)")
	testdataCmd.Flags().StringP("out", "o", "", "Output file (defaults to TEST_DATA_FILE)")

	rootCmd.AddCommand(apisCmd, generateCmd, queryCmd, runCmd, serveCmd, dbcheckCmd, registerCmd, testdataCmd)

	if err := rootCmd.Execute(); err != nil {
		errorColor.Fprintf(os.Stderr, "❌ Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the .env file and applies the global flags.
func loadConfig() (*config.Config, zerolog.Logger) {
	cfg, err := config.Load(envFile)
	if err != nil {
		errorColor.Printf("❌ Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if schemaFile != "" {
		cfg.SchemaFile = schemaFile
	}
	if err := cfg.Validate(); err != nil {
		errorColor.Printf("❌ Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg, cfg.Logger(os.Stderr, verbose)
}

func loadCatalog(cfg *config.Config) *schema.Catalog {
	catalog, err := schema.LoadOrDefault(cfg.SchemaFile)
	if err != nil {
		errorColor.Printf("❌ Failed to load schema: %v\n", err)
		os.Exit(1)
	}
	if cfg.SchemaFile == "" {
		infoColor.Fprintln(os.Stderr, "ℹ️  Using built-in API catalog")
	}
	return catalog
}

func newClient(cfg *config.Config, log zerolog.Logger) *client.Client {
	if cfg.RequestKey == "" {
		warningColor.Println("⚠️  PQL_REQUEST_KEY not set - requests will likely be rejected")
	}
	return client.New(client.Config{
		Endpoint:   cfg.Endpoint,
		RequestKey: cfg.RequestKey,
		Timeout:    cfg.Timeout,
		Logger:     log,
	})
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// parseDebounceDuration parses and validates a debounce duration string
func parseDebounceDuration(durationStr string) time.Duration {
	duration, err := time.ParseDuration(durationStr)
	if err != nil || duration < 0 {
		errorColor.Printf("❌ Invalid debounce duration '%s'\n", durationStr)
		errorColor.Println("💡 Valid examples: 0s, 500ms, 1s, 5s, 1m")
		os.Exit(1)
	}
	return duration
}

func generatorOptions(cmd *cobra.Command) generator.Options {
	seed, _ := cmd.Flags().GetInt64("seed")
	names, _ := cmd.Flags().GetStringSlice("category")

	cats, err := generator.ParseCategories(names)
	if err != nil {
		errorColor.Printf("❌ %v\n", err)
		errorColor.Printf("💡 Valid categories: %s\n", categoryList())
		os.Exit(1)
	}

	opts := generator.Options{Seed: seed, Categories: cats}
	if cmd.Flags().Lookup("limit") != nil {
		opts.Limit, _ = cmd.Flags().GetInt("limit")
	}
	return opts
}

func categoryList() string {
	names := make([]string, len(generator.Categories))
	for i, c := range generator.Categories {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func runAPIs(cmd *cobra.Command, args []string) {
	cfg, _ := loadConfig()
	catalog := loadCatalog(cfg)

	if name, _ := cmd.Flags().GetString("api"); name != "" {
		api, err := catalog.Lookup(name)
		if err != nil {
			errorColor.Printf("❌ %v\n", err)
			os.Exit(1)
		}

		fmt.Println()
		successColor.Printf("🗂️  %s\n", api.Name)
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		for i, f := range api.Fields {
			fmt.Printf("%3d. %-36s %s\n", i+1, f, api.TypeOf(f))
		}
		fmt.Println()
		return
	}

	fmt.Println()
	successColor.Printf("📋 %d APIs\n", catalog.Len())
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	for i, api := range catalog.Items {
		fmt.Printf("%3d. %-36s %d fields\n", i+1, api.Name, len(api.Fields))
	}
	fmt.Println()
}

func runGenerate(cmd *cobra.Command, args []string) {
	cfg, log := loadConfig()
	opts := generatorOptions(cmd)
	out, _ := cmd.Flags().GetString("out")
	formatStr, _ := cmd.Flags().GetString("format")
	watchMode, _ := cmd.Flags().GetBool("watch")

	format := exporter.FormatText
	var err error
	switch {
	case formatStr != "":
		format, err = exporter.ParseFormat(formatStr)
	case out != "":
		format, err = exporter.FormatFromPath(out)
	}
	if err != nil {
		errorColor.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	if format == exporter.FormatXLSX && out == "" {
		errorColor.Println("❌ xlsx output needs --out")
		os.Exit(1)
	}

	generate := func(catalog *schema.Catalog) error {
		return writeSuite(os.Stdout, catalog, opts, args, format, out)
	}

	if err := generate(loadCatalog(cfg)); err != nil {
		errorColor.Printf("❌ %v\n", err)
		os.Exit(1)
	}
	if !watchMode {
		return
	}

	if cfg.SchemaFile == "" {
		errorColor.Println("❌ --watch needs a schema file (--schema or SCHEMA_FILE)")
		os.Exit(1)
	}
	debounce, _ := cmd.Flags().GetString("debounce")

	fw, err := watcher.NewFileWatcher(log)
	if err != nil {
		errorColor.Printf("❌ Failed to create file watcher: %v\n", err)
		os.Exit(1)
	}
	defer fw.Close()

	if err := fw.Watch(cfg.SchemaFile, func(path string) {
		infoColor.Printf("🔄 File changed: %s\n", filepath.Base(path))
		catalog, err := schema.Load(path)
		if err != nil {
			errorColor.Printf("❌ Failed to reload schema: %v\n", err)
			return
		}
		if err := generate(catalog); err != nil {
			errorColor.Printf("❌ %v\n", err)
		}
	}, parseDebounceDuration(debounce)); err != nil {
		errorColor.Printf("❌ Failed to watch file: %v\n", err)
		os.Exit(1)
	}
	fw.Start()

	infoColor.Printf("👀 Watching file: %s\n", cfg.SchemaFile)
	infoColor.Println("📝 Press Ctrl+C to stop watching")

	ctx, stop := signalContext()
	defer stop()
	<-ctx.Done()
}

func runQuery(cmd *cobra.Command, args []string) {
	cfg, log := loadConfig()
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	csvFile, _ := cmd.Flags().GetString("csv")

	ctx, stop := signalContext()
	defer stop()

	c := newClient(cfg, log)
	infoColor.Printf("🔎 Sending query to %s\n", c.Endpoint())

	res, err := c.Execute(ctx, pql.Request{PQL: args[0], Limit: limit, Offset: offset})
	if err != nil {
		errorColor.Printf("❌ Request failed: %v\n", err)
		os.Exit(1)
	}

	if !res.OK() {
		errorColor.Printf("❌ HTTP %d in %s\n", res.StatusCode, res.Latency.Round(time.Millisecond))
		if len(res.Body) > 0 {
			fmt.Println(string(res.Body))
		}
		os.Exit(1)
	}

	r := res.Response
	successColor.Printf("✅ HTTP %d in %s\n", res.StatusCode, res.Latency.Round(time.Millisecond))
	infoColor.Printf("📊 %d items (total %s, offset %s, limit %s, execution %sms)\n",
		len(r.Items), r.TotalCount, r.Offset, r.Limit, r.ExecutionTime)

	data, _ := json.MarshalIndent(r.Items, "", "  ")
	fmt.Println(string(data))

	if csvFile != "" {
		if len(r.Items) == 0 {
			warningColor.Println("⚠️  No items to export")
			return
		}
		if err := exporter.NewExporter().ExportItems(r.Items, csvFile); err != nil {
			errorColor.Printf("❌ Failed to export CSV: %v\n", err)
			os.Exit(1)
		}
		successColor.Printf("✅ Items written to: %s\n", csvFile)
	}
}

// writeSuite generates the suite for apis and writes it to out, or to stdout
// when out is empty.
func writeSuite(stdout io.Writer, catalog *schema.Catalog, opts generator.Options, apis []string, format exporter.ExportFormat, out string) error {
	suite, err := generator.New(catalog, opts).Generate(apis...)
	if err != nil {
		return fmt.Errorf("failed to generate: %w", err)
	}

	exp := exporter.NewExporter()
	if out == "" {
		if err := exp.WriteSuite(stdout, suite, format); err != nil {
			return fmt.Errorf("failed to write suite: %w", err)
		}
		return nil
	}
	if err := exp.ExportSuite(suite, format, out); err != nil {
		return fmt.Errorf("failed to export suite: %w", err)
	}

	sum := generator.Summarize(suite)
	successColor.Printf("✅ %d test cases for %d APIs written to: %s\n", sum.Total, len(suite.APIs), out)
	for _, c := range generator.Categories {
		if n := sum.ByCategory[c]; n > 0 {
			infoColor.Printf("   • %-16s %d\n", c, n)
		}
	}
	return nil
}

// Package main is the docanalysis CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hyperjump/docanalysis/internal/cli"
	"github.com/hyperjump/docanalysis/internal/config"
	"github.com/hyperjump/docanalysis/internal/dispatch"
	"github.com/hyperjump/docanalysis/internal/entityindex"
	"github.com/hyperjump/docanalysis/internal/extract"
	"github.com/hyperjump/docanalysis/internal/fileid"
	"github.com/hyperjump/docanalysis/internal/models"
	"github.com/hyperjump/docanalysis/internal/nlp"
	"github.com/hyperjump/docanalysis/internal/procedure"
	"github.com/hyperjump/docanalysis/internal/resolver"
	"github.com/hyperjump/docanalysis/internal/segment"
	"github.com/hyperjump/docanalysis/internal/server"
	"github.com/hyperjump/docanalysis/internal/storage"
	"github.com/hyperjump/docanalysis/internal/watcher"
	"github.com/hyperjump/docanalysis/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/docanalysis/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default and a
// config.yaml exists in the current directory, that file is used instead so
// that running from a project checkout picks up the project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := argsReorder(os.Args[2:])
	switch command {
	case "server":
		runServer(args)
	case "add":
		runAdd(args)
	case "run":
		runProcedure(args)
	case "job":
		runJob(args)
	case "languages":
		runLanguages(args)
	case "entities":
		runEntities(args)
	case "status":
		runStatus(args)
	case "version", "--version", "-v":
		fmt.Printf("docanalysis version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// argsReorder moves flags that appear after the positional arguments to the
// front so that flag.Parse sees them. The flag package stops at the first
// non-flag argument, so "docanalysis run read c1 --wait" would otherwise
// leave --wait unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// procedureAliases maps short command line names to procedure keys.
var procedureAliases = map[string]string{
	"read":     models.ProcedureReadText,
	"readtext": models.ProcedureReadText,
	"tag":      models.ProcedureTagEntities,
	"ner":      models.ProcedureTagEntities,
	"entities": models.ProcedureTagEntities,
}

// resolveProcedure accepts a full procedure key or one of its aliases.
func resolveProcedure(name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if procedure.Known(key) {
		return key, nil
	}
	if full, ok := procedureAliases[strings.NewReplacer("-", "", "_", "").Replace(key)]; ok {
		return full, nil
	}
	return "", fmt.Errorf("%w: %q", procedure.ErrUnknownProcedure, name)
}

// contentInputFor builds the registration for the document at path. The name
// defaults to the file's base name.
func contentInputFor(path, id, name string) (models.ContentInput, error) {
	if id != "" {
		if err := models.ValidateContentID(id); err != nil {
			return models.ContentInput{}, err
		}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return models.ContentInput{}, err
	}
	if name == "" {
		name = filepath.Base(abs)
	}
	return models.ContentInput{ID: id, Name: name, SourcePath: abs}, nil
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (job progress, watched files, model downloads)")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, true)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	components.Dispatcher.Start(ctx)

	inbox := watcher.NewInbox(components.Storage, components.Dispatcher, components.Layout, cfg.Watch.Language, logger.Named("inbox"))
	watchSvc := watcher.NewWatcher(cfg.Watch.Directories, cfg.Watch.Extensions, cfg.Watch.RecursiveOrDefault(), inbox.Handle,
		watcher.WithLogger(utils.ComponentLogger(logger, debugMode, "watcher")))
	if err := watchSvc.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	watchSvc.SyncExistingFiles()

	srv := server.NewServer(
		components.Storage,
		components.Runner,
		components.Languages,
		components.Dispatcher,
		&cfg.Server,
		logger,
		server.WithEntitySearch(components.Entities),
		server.WithWatch(watchSvc),
		server.WithAppConfig(cfg),
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchSvc.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if err := components.Dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("dispatcher shutdown incomplete", zap.Error(err))
	}
}

func runAdd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	id := fs.String("id", "", "content id (default: derived from the file path)")
	name := fs.String("name", "", "content name (default: the file name)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Println("Usage: docanalysis add [flags] <file>")
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	input, err := contentInputFor(fs.Arg(0), *id, *name)
	if err != nil {
		fatalf("Invalid input: %v", err)
	}
	ctx := context.Background()

	var record *models.ContentRecord
	if *serverURL != "" {
		record, err = cli.NewClient(*serverURL, 30*time.Second).CreateContent(ctx, input)
	} else {
		record, err = withComponents(*configPath, func(c *Components) (*models.ContentRecord, error) {
			if _, statErr := os.Stat(input.SourcePath); statErr != nil {
				return nil, statErr
			}
			if input.ID == "" {
				input.ID = fileid.ContentID(input.SourcePath)
			}
			rec := &models.ContentRecord{
				ID:         input.ID,
				Name:       input.Name,
				SourcePath: input.SourcePath,
				Path:       c.Layout.ContentDir(input.ID),
			}
			return rec, c.Storage.CreateContent(ctx, rec)
		})
	}
	if err != nil {
		fatalf("Add failed: %v", err)
	}
	if err := cli.WriteContent(os.Stdout, record, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runProcedure(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = run in this process)")
	language := fs.String("language", "", "language name for read_text_with_spacy (default from config)")
	wait := fs.Bool("wait", false, "wait for the job to finish")
	timeout := fs.Duration("timeout", 30*time.Minute, "how long --wait waits")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	if fs.NArg() != 2 {
		fmt.Println("Usage: docanalysis run [flags] <procedure> <content-id>")
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	key, err := resolveProcedure(fs.Arg(0))
	if err != nil {
		fatalf("%v", err)
	}
	contentID := fs.Arg(1)
	params := map[string]string{}
	if *language != "" {
		params["language"] = *language
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var job *models.Job
	if *serverURL != "" {
		client := cli.NewClient(*serverURL, 30*time.Second)
		job, err = client.Submit(ctx, key, contentID, params)
		if err == nil && *wait {
			job, err = client.WaitJob(ctx, job.ID, 500*time.Millisecond)
		}
	} else {
		// In-process runs always wait: the dispatcher drains before exiting.
		job, err = withComponents(*configPath, func(c *Components) (*models.Job, error) {
			c.Dispatcher.Start(ctx)
			queued, err := c.Dispatcher.Submit(ctx, key, contentID, params)
			if shutdownErr := c.Dispatcher.Shutdown(ctx); shutdownErr != nil {
				err = multierr.Append(err, shutdownErr)
			}
			if err != nil {
				return nil, err
			}
			return c.Storage.GetJob(context.WithoutCancel(ctx), queued.ID)
		})
	}
	if err != nil {
		fatalf("Run failed: %v", err)
	}
	if err := cli.WriteJob(os.Stdout, job, format); err != nil {
		fatalf("Output failed: %v", err)
	}
	if job.Status == models.JobStatusError {
		os.Exit(2)
	}
}

func runJob(args []string) {
	fs := flag.NewFlagSet("job", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Println("Usage: docanalysis job [flags] <job-id>")
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	ctx := context.Background()
	var job *models.Job
	var err error
	if *serverURL != "" {
		job, err = cli.NewClient(*serverURL, 30*time.Second).Job(ctx, fs.Arg(0))
	} else {
		job, err = withComponents(*configPath, func(c *Components) (*models.Job, error) {
			return c.Storage.GetJob(ctx, fs.Arg(0))
		})
	}
	if err != nil {
		fatalf("Job lookup failed: %v", err)
	}
	if err := cli.WriteJob(os.Stdout, job, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runLanguages(args []string) {
	fs := flag.NewFlagSet("languages", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = query the model index directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	format := parseFormat(*outputFormat)
	ctx := context.Background()
	var langs []models.LanguageInfo
	var err error
	if *serverURL != "" {
		langs, err = cli.NewClient(*serverURL, 2*time.Minute).Languages(ctx)
	} else {
		langs, err = withComponents(*configPath, func(c *Components) ([]models.LanguageInfo, error) {
			names, err := c.Languages.Names(ctx)
			if err != nil {
				return nil, err
			}
			out := make([]models.LanguageInfo, 0, len(names))
			for _, name := range names {
				info, err := c.Languages.Resolve(ctx, name)
				if err != nil {
					return nil, err
				}
				out = append(out, info)
			}
			return out, nil
		})
	}
	if err != nil {
		fatalf("Languages failed: %v", err)
	}
	if err := cli.WriteLanguages(os.Stdout, langs, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runEntities(args []string) {
	fs := flag.NewFlagSet("entities", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use the entity index directly)")
	label := fs.String("label", "", "only mentions with this entity label, e.g. PERSON")
	contentID := fs.String("content", "", "only mentions from this content id")
	fuzziness := fs.Int("fuzziness", 0, "typo tolerance, 0-2")
	limit := fs.Int("limit", 20, "maximum number of mentions")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Println("Usage: docanalysis entities [flags] <query>")
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	opts := entityindex.SearchOptions{Label: *label, ContentID: *contentID, Fuzziness: *fuzziness, Limit: *limit}
	ctx := context.Background()
	var mentions []entityindex.Mention
	var err error
	if *serverURL != "" {
		mentions, err = cli.NewClient(*serverURL, 30*time.Second).SearchEntities(ctx, query, opts)
	} else {
		mentions, err = withComponents(*configPath, func(c *Components) ([]entityindex.Mention, error) {
			return c.Entities.Search(ctx, query, opts)
		})
	}
	if err != nil {
		fatalf("Entity search failed: %v", err)
	}
	if err := cli.WriteMentions(os.Stdout, mentions, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	format := parseFormat(*outputFormat)
	ctx := context.Background()
	var status map[string]interface{}
	var err error
	if *serverURL != "" {
		status, err = cli.NewClient(*serverURL, 30*time.Second).Status(ctx)
	} else {
		status, err = withComponents(*configPath, func(c *Components) (map[string]interface{}, error) {
			return directStatus(ctx, c)
		})
	}
	if err != nil {
		fatalf("Status failed: %v", err)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func directStatus(ctx context.Context, c *Components) (map[string]interface{}, error) {
	content, err := c.Storage.CountContent(ctx)
	if err != nil {
		return nil, err
	}
	jobs := make(map[string]interface{})
	for _, s := range []models.JobStatus{models.JobStatusQueued, models.JobStatusRunning, models.JobStatusComplete, models.JobStatusError} {
		n, err := c.Storage.CountJobs(ctx, s)
		if err != nil {
			return nil, err
		}
		jobs[string(s)] = n
	}
	status := map[string]interface{}{"content": content, "jobs": jobs}
	if n, err := c.Entities.DocCount(); err == nil {
		status["entity_mentions"] = n
	}
	return status, nil
}

// withComponents opens the local stack for one direct-mode command.
func withComponents[T any](configPath string, fn func(*Components) (T, error)) (T, error) {
	var zero T
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return zero, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return zero, fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger, cfg.Debug)
	if err != nil {
		return zero, err
	}
	defer components.Close()
	return fn(components)
}

// Components holds the initialized local stack.
type Components struct {
	Storage    *storage.SQLiteStorage
	Entities   *entityindex.BleveIndex
	Languages  *resolver.Resolver
	Runner     *procedure.Runner
	Dispatcher *dispatch.Dispatcher
	Layout     storage.Layout
}

// Close releases the storage and index handles.
func (c *Components) Close() {
	if c.Entities != nil {
		_ = c.Entities.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	entities, err := entityindex.NewBleveIndex(cfg.Storage.EntityIndexPath)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize entity index: %w", err)
	}

	runtime := nlp.NewLocalRuntime(nlp.LocalConfig{
		ModelsDir:      cfg.Models.Dir,
		IndexURL:       cfg.Models.IndexURL,
		DownloadURL:    cfg.Models.DownloadURL,
		RuntimeVersion: cfg.Models.RuntimeVersion,
		Engine:         cfg.Analysis.EngineName,
		Timeout:        cfg.Models.DownloadTimeout,
	}, nlp.WithLogger(utils.ComponentLogger(logger, debug, "models")))
	languages := resolver.New(runtime, resolver.Config{
		Family:    cfg.Models.CompatibilityFamily,
		SizeClass: cfg.Models.SizeClass,
	}, resolver.WithLogger(utils.ComponentLogger(logger, debug, "resolver")))

	layout := storage.Layout{Root: cfg.Storage.ContentRoot, Engine: cfg.Analysis.EngineName, Ext: cfg.Analysis.ArtifactExt}
	runner := procedure.NewRunner(store, languages, extract.NewExtractor(), procedure.Config{
		Layout: layout,
		Segment: segment.Options{
			MaxLength:      cfg.Analysis.MaxSegmentLength,
			SplitLongLines: cfg.Analysis.SplitLongLinesOrDefault(),
		},
		DefaultLanguage: cfg.Analysis.DefaultLanguage,
	}, procedure.WithLogger(utils.ComponentLogger(logger, debug, "procedure")), procedure.WithEntityIndex(entities))
	dispatcher := dispatch.New(store, runner, dispatch.Config{
		Workers:   cfg.Dispatch.Workers,
		QueueSize: cfg.Dispatch.QueueSize,
	}, dispatch.WithLogger(utils.ComponentLogger(logger, debug, "dispatch")))

	return &Components{
		Storage:    store,
		Entities:   entities,
		Languages:  languages,
		Runner:     runner,
		Dispatcher: dispatcher,
		Layout:     layout,
	}, nil
}

func printUsage() {
	fmt.Println(`docanalysis - Document analysis service with pluggable NLP procedures

Usage:
  docanalysis server [flags]                        Start the HTTP server, job workers and inbox watcher
  docanalysis add [flags] <file>                    Register a document as a content record
  docanalysis run [flags] <procedure> <content-id>  Run a procedure against a content record
  docanalysis job [flags] <job-id>                  Show a job and its progress log
  docanalysis languages [flags]                     List languages that have a compatible model
  docanalysis entities [flags] <query>              Search tagged entity mentions
  docanalysis status [flags]                        Show content, job and index counts
  docanalysis version                               Show version
  docanalysis help                                  Show this help

Procedures:
  read_text_with_spacy    (alias: read)  Split the source text into segments and store one model artifact per segment
  perform_ner_with_spacy  (alias: tag)   Tag named entities from the stored artifacts into one XML document

Common Flags:
  --config string    Config file path (default: /usr/local/etc/docanalysis/config.yaml)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to work on local storage directly.
  --output string    Output format: text or json (default: text)

Run Flags:
  --language string  Language for read_text_with_spacy (default from config)
  --wait             Wait for the job to finish (always on with --server "")
  --timeout duration How long to wait (default: 30m)

Entities Flags:
  --label string     Only this entity label
  --content string   Only this content id
  --fuzziness int    Typo tolerance, 0-2
  --limit int        Maximum mentions (default: 20)

Examples:
  docanalysis server
  docanalysis add report.pdf
  docanalysis run read 6f1c... --language German --wait
  docanalysis run tag 6f1c... --wait
  docanalysis entities --label PERSON lovelace
  docanalysis status --output json`)
}

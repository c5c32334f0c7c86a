package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ldi/nudge/internal/config"
	"github.com/ldi/nudge/internal/mcp"
	"github.com/ldi/nudge/internal/notify"
	"github.com/ldi/nudge/internal/scheduler"
	"github.com/ldi/nudge/internal/service"
	"github.com/ldi/nudge/internal/store"
	"github.com/ldi/nudge/pkg/models"
)

var (
	configPath string
	dbPath     string
	verbose    bool
)

func main() {
	flag.StringVar(&configPath, "config", ".nudge/config.yaml", "Path to config file")
	flag.StringVar(&dbPath, "db-path", "", "Path to database file (overrides config)")
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	flag.Parse()

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch command {
	case "init":
		err = runInit(args)
	case "add":
		err = runAdd(args)
	case "list":
		err = runList(args)
	case "update":
		err = runUpdate(args)
	case "done":
		err = runDone(args)
	case "delete":
		err = runDelete(args)
	case "status":
		err = runStatus(args)
	case "watch":
		err = runWatch(args)
	case "mcp":
		err = runMCP(args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: nudge [flags] <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  init      Initialize the .nudge directory, config and database")
	fmt.Println("  add       Add a task")
	fmt.Println("  list      List tasks")
	fmt.Println("  update    Update a task by id")
	fmt.Println("  done      Toggle a task between pending and completed")
	fmt.Println("  delete    Delete a task by id")
	fmt.Println("  status    Show a summary of the task collection")
	fmt.Println("  watch     Run the reminder loop until interrupted")
	fmt.Println("  mcp       Serve the task API over MCP on stdio")
}

// loadConfig reads the config file, falling back to defaults when it
// does not exist. The -db-path flag wins over both.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if verbose || cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openService builds the lifecycle service over the configured store
// and loads the persisted collection.
func openService(ctx context.Context, cfg *config.Config) (*service.Service, error) {
	svc := service.New(store.New(cfg.DBPath))
	if err := svc.Load(ctx); err != nil {
		return nil, err
	}
	if !svc.Persistent() {
		fmt.Fprintln(os.Stderr, "Warning: durable storage unavailable, running session-only")
	}
	return svc, nil
}

func runInit(args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	nudgeDir := filepath.Join(targetDir, ".nudge")
	if err := os.MkdirAll(nudgeDir, 0755); err != nil {
		return fmt.Errorf("failed to create .nudge directory: %w", err)
	}
	fmt.Println("✓ Created .nudge/ directory")

	cfgPath := filepath.Join(nudgeDir, "config.yaml")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.Default()
		cfg.DBPath = filepath.Join(nudgeDir, "nudge.db")
		if err := cfg.Write(cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Wrote default config to %s\n", cfgPath)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	st := store.New(cfg.DBPath)
	defer st.Close()
	if err := st.Init(context.Background()); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	fmt.Printf("✓ Initialized database at %s\n", cfg.DBPath)

	fmt.Println("✓ Nudge initialized successfully")
	return nil
}

func runAdd(args []string) error {
	addFlags := flag.NewFlagSet("add", flag.ContinueOnError)
	title := addFlags.String("title", "", "Task title (required)")
	description := addFlags.String("desc", "", "Task description")
	category := addFlags.String("category", "life", "Category (work|study|life)")
	priority := addFlags.String("priority", "medium", "Priority (high|medium|low)")
	due := addFlags.String("due", "", "Due time, e.g. '2025-06-02 14:30'")
	remind := addFlags.String("remind", "none", "Reminder lead (none|at_time|5m|15m|30m|1h|2h|1d)")
	if err := addFlags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	svc, err := openService(ctx, cfg)
	if err != nil {
		return err
	}

	dueAt, err := service.ParseDueAt(*due)
	if err != nil {
		return err
	}

	t, err := svc.Create(ctx, service.CreateInput{
		Title:        *title,
		Description:  *description,
		Category:     models.Category(*category),
		Priority:     models.Priority(*priority),
		DueAt:        dueAt,
		ReminderLead: models.ReminderLead(*remind),
	})
	if err != nil {
		return err
	}

	fmt.Printf("✓ Added task %s: %s\n", shortID(t.ID), t.Title)
	return nil
}

func runList(args []string) error {
	listFlags := flag.NewFlagSet("list", flag.ContinueOnError)
	category := listFlags.String("category", "", "Filter by category (empty for all)")
	status := listFlags.String("status", "", "Filter by status (empty for all)")
	sortKey := listFlags.String("sort", "created", "Sort key (created|due|priority)")
	if err := listFlags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	svc, err := openService(ctx, cfg)
	if err != nil {
		return err
	}

	tasks := models.FilterAndSort(svc.List(), models.ListFilter{
		Category: models.Category(*category),
		Status:   models.Status(*status),
	}, models.SortKey(*sortKey))

	printTaskTable(tasks)
	return nil
}

func printTaskTable(tasks []models.Task) {
	fmt.Printf("%-10s %-30s %-8s %-8s %-10s %-17s\n", "ID", "TITLE", "CATEGORY", "PRIORITY", "STATUS", "DUE")
	fmt.Println("-------------------------------------------------------------------------------------")
	for _, t := range tasks {
		due := ""
		if t.DueAt != nil {
			due = t.DueAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Printf("%-10s %-30s %-8s %-8s %-10s %-17s\n",
			shortID(t.ID), truncate(t.Title, 30), t.Category, t.Priority, t.Status, due)
	}
}

func runUpdate(args []string) error {
	updateFlags := flag.NewFlagSet("update", flag.ContinueOnError)
	title := updateFlags.String("title", "", "New title")
	description := updateFlags.String("desc", "", "New description")
	category := updateFlags.String("category", "", "New category")
	priority := updateFlags.String("priority", "", "New priority")
	due := updateFlags.String("due", "", "New due time")
	clearDue := updateFlags.Bool("clear-due", false, "Remove the due time")
	remind := updateFlags.String("remind", "", "New reminder lead")
	if err := updateFlags.Parse(args); err != nil {
		return err
	}

	if updateFlags.NArg() == 0 {
		return fmt.Errorf("usage: nudge update [flags] <task-id>")
	}
	id := updateFlags.Arg(0)

	var patch service.Patch
	set := map[string]bool{}
	updateFlags.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["title"] {
		patch.Title = title
	}
	if set["desc"] {
		patch.Description = description
	}
	if set["category"] {
		c := models.Category(*category)
		patch.Category = &c
	}
	if set["priority"] {
		p := models.Priority(*priority)
		patch.Priority = &p
	}
	if set["remind"] {
		l := models.ReminderLead(*remind)
		patch.ReminderLead = &l
	}
	if set["due"] {
		dueAt, err := service.ParseDueAt(*due)
		if err != nil {
			return err
		}
		patch.DueAt = dueAt
	}
	patch.ClearDueAt = *clearDue

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	svc, err := openService(ctx, cfg)
	if err != nil {
		return err
	}

	id, err = resolveID(svc, id)
	if err != nil {
		return err
	}

	t, err := svc.Update(ctx, id, patch)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Updated task %s: %s\n", shortID(t.ID), t.Title)
	return nil
}

func runDone(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: nudge done <task-id>")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	svc, err := openService(ctx, cfg)
	if err != nil {
		return err
	}

	id, err := resolveID(svc, args[0])
	if err != nil {
		return err
	}

	t, err := svc.Toggle(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Task %s is now %s\n", shortID(t.ID), t.Status)
	return nil
}

func runDelete(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: nudge delete <task-id>")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	svc, err := openService(ctx, cfg)
	if err != nil {
		return err
	}

	id, err := resolveID(svc, args[0])
	if err != nil {
		return err
	}

	if err := svc.Delete(ctx, id); err != nil {
		return err
	}

	fmt.Printf("✓ Deleted task %s\n", shortID(id))
	return nil
}

func runStatus(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	svc, err := openService(ctx, cfg)
	if err != nil {
		return err
	}

	tasks := svc.List()

	statusCounts := make(map[models.Status]int)
	categoryCounts := make(map[models.Category]int)
	for _, t := range tasks {
		statusCounts[t.Status]++
		categoryCounts[t.Category]++
	}

	fmt.Println("Nudge Status")
	fmt.Println("============")
	fmt.Printf("Total Tasks: %d\n", len(tasks))
	fmt.Printf("  Pending:   %d\n", statusCounts[models.StatusPending])
	fmt.Printf("  Completed: %d\n", statusCounts[models.StatusCompleted])
	fmt.Printf("\nBy Category:\n")
	fmt.Printf("  Work:  %d\n", categoryCounts[models.CategoryWork])
	fmt.Printf("  Study: %d\n", categoryCounts[models.CategoryStudy])
	fmt.Printf("  Life:  %d\n", categoryCounts[models.CategoryLife])

	upcoming := models.SortTasks(models.FilterTasks(tasks, models.ListFilter{Status: models.StatusPending}), models.SortByDue)
	shown := 0
	for _, t := range upcoming {
		if t.DueAt == nil || shown >= 5 {
			break
		}
		if shown == 0 {
			fmt.Println("\nNext Due:")
		}
		fmt.Printf("  - %s (%s)\n", t.Title, t.DueAt.Local().Format("2006-01-02 15:04"))
		shown++
	}

	return nil
}

func runWatch(args []string) error {
	watchFlags := flag.NewFlagSet("watch", flag.ContinueOnError)
	interval := watchFlags.Duration("interval", 0, "Evaluation interval (0 to use config)")
	if err := watchFlags.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := openService(ctx, cfg)
	if err != nil {
		return err
	}

	dispatcher := notify.NewDispatcher(notify.NewDesktop(cfg.NotifyCommand), logger)
	dispatcher.SetFallback(func(tasks []models.Task) {
		for _, t := range tasks {
			fmt.Printf("⏰ Reminder: %s\n", t.Title)
		}
	})

	perm := dispatcher.RequestPermission(ctx)
	logger.Info("notification permission", slog.String("status", string(perm)))

	loop := scheduler.New(svc.List, dispatcher, svc.MarkNotified, logger)
	loop.PermissionPollInterval = time.Duration(cfg.PermissionPollInterval)

	evalInterval := time.Duration(cfg.EvalInterval)
	if *interval > 0 {
		evalInterval = *interval
	}

	loop.Start(ctx, evalInterval)
	logger.Info("reminder loop running", slog.Duration("interval", evalInterval))

	<-ctx.Done()
	loop.Stop()
	logger.Info("reminder loop stopped")
	return nil
}

func runMCP(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	svc, err := openService(context.Background(), cfg)
	if err != nil {
		return err
	}

	return mcp.Serve(mcp.NewServer(svc))
}

// resolveID expands a unique id prefix to the full task id.
func resolveID(svc *service.Service, prefix string) (string, error) {
	if _, ok := svc.Find(prefix); ok {
		return prefix, nil
	}

	var match string
	for _, t := range svc.List() {
		if len(prefix) >= 4 && len(t.ID) >= len(prefix) && t.ID[:len(prefix)] == prefix {
			if match != "" {
				return "", fmt.Errorf("id prefix %q is ambiguous", prefix)
			}
			match = t.ID
		}
	}
	if match == "" {
		return prefix, nil // let the service report TASK_NOT_FOUND
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

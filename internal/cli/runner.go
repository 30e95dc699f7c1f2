package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/idilsaglam/tada/internal/config"
	"github.com/idilsaglam/tada/internal/logging"
	"github.com/idilsaglam/tada/internal/model"
	"github.com/idilsaglam/tada/internal/store"
	"github.com/idilsaglam/tada/internal/syncer"
	"github.com/idilsaglam/tada/internal/tui"
	"github.com/idilsaglam/tada/internal/ui"
)

// Options carry the root flags.
type Options struct {
	Flags config.Flags
}

// requestTimeout bounds one-shot commands; the TUI relies on the store
// client's own timeouts.
const requestTimeout = 15 * time.Second

// Run dispatches subcommands and returns an exit code (0 ok, 1 error, 2 usage).
func Run(args []string, opt Options) int {
	cmd, a := "ui", []string(nil)
	if len(args) > 0 {
		cmd, a = args[0], args[1:]
	}
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		PrintHelp()
		return 0
	}

	cfg, sources, err := config.LoadWithSources(opt.Flags)
	if err != nil {
		ui.Fail("config: " + err.Error())
		return 2
	}
	ui.SetTheme(cfg.Theme)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch cmd {
	case "ui":
		return doUI(ctx, cfg)

	case "config":
		return doConfig(cfg, sources)

	case "ls":
		return withStore(ctx, cfg, func(ctx context.Context, st store.Store, logger *log.Logger) int {
			return doList(ctx, cfg, st)
		})

	case "add":
		if len(a) == 0 {
			ui.Fail("usage: todo add <text...>")
			return 2
		}
		return withStore(ctx, cfg, func(ctx context.Context, st store.Store, logger *log.Logger) int {
			return doAdd(ctx, cfg, st, logger, strings.Join(a, " "))
		})

	case "edit":
		if len(a) < 2 {
			ui.Fail("usage: todo edit <index|id> <text...>")
			return 2
		}
		return withStore(ctx, cfg, func(ctx context.Context, st store.Store, logger *log.Logger) int {
			return doEdit(ctx, cfg, st, logger, a[0], strings.Join(a[1:], " "))
		})

	case "rm":
		if len(a) != 1 {
			ui.Fail("usage: todo rm <index|id>")
			return 2
		}
		return withStore(ctx, cfg, func(ctx context.Context, st store.Store, logger *log.Logger) int {
			return doRemove(ctx, cfg, st, logger, a[0])
		})
	}

	ui.Fail("unknown subcommand: " + cmd)
	fmt.Fprintln(ui.Stderr)
	PrintHelp()
	return 2
}

func PrintHelp() {
	fmt.Fprintf(ui.Stdout, `todo - a todo list synced to a document store

Usage:
  todo [flags] [subcommand] [args]

Subcommands:
  ui                          Interactive list (default)
  ls                          Print the current list
  add <text...>               Add a new item (text can be multiple words)
  edit <index|id> <text...>   Replace an item's text
  rm <index|id>               Remove an item
  config                      Show the resolved configuration

Flags:
  -config <path>      TOML config file (default: user config, then ./%s)
  -backend <name>     firestore | redis | json | memory
  -collection <name>  Collection to watch (default %q)
  -log-level <level>  debug | info | warn | error
  -theme <name>       classic | neon | mono

Firestore settings come from %sPROJECT_ID etc., falling back to %sPROJECT_ID.

Examples:
  todo add "Buy milk"
  todo ls
  todo edit 1 "Buy oat milk"
  todo rm 2
`, config.ProjectFileName, config.DefaultCollection, config.PrimaryEnvPrefix, config.FallbackEnvPrefix)
}

// -------------- subcommand impls ----------------

func doUI(ctx context.Context, cfg *config.Config) int {
	logger := logging.Discard()
	if cfg.LogFile != "" {
		l, closer, err := logging.OpenFile(cfg.LogFile, cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			ui.Fail("log: " + err.Error())
			return 1
		}
		defer closer.Close()
		logger = l
	}

	opts := []syncer.Option{
		syncer.WithCollection(cfg.Collection),
		syncer.WithLogger(logger),
		syncer.WithContext(ctx),
	}
	var st store.Store
	code := 0
	if err := cfg.Validate(); err != nil {
		opts = append(opts, syncer.WithFatal(fatalMessage(err)))
		code = 2
	} else if st, err = openStore(ctx, cfg); err != nil {
		logger.Error("open store", "backend", cfg.Backend, "err", err)
		opts = append(opts, syncer.WithFatal(fatalMessage(err)))
		code = 2
	} else {
		defer st.Close()
	}

	s := syncer.New(st, opts...)
	defer s.Close()
	p := tea.NewProgram(tui.New(s), tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		ui.Fail("tui: " + err.Error())
		return 1
	}
	if code == 0 && s.Phase() == syncer.PhaseFatal {
		code = 2
	}
	return code
}

func fatalMessage(err error) string {
	if errors.Is(err, config.ErrMissingProjectID) {
		return fmt.Sprintf("Firebase project ID is missing. Set %sPROJECT_ID (or %sPROJECT_ID) and restart.",
			config.PrimaryEnvPrefix, config.FallbackEnvPrefix)
	}
	return err.Error()
}

func doConfig(cfg *config.Config, sources map[string]config.Source) int {
	t := ui.Current()
	lines := []string{t.Title.Render("Configuration"), ""}
	for _, kv := range cfg.Redacted() {
		line := fmt.Sprintf("%-30s %s", kv[0], kv[1])
		if src, ok := sources[kv[0]]; ok {
			line += "  " + t.Muted.Render("("+string(src)+")")
		}
		lines = append(lines, line)
	}
	if err := cfg.Validate(); err != nil {
		lines = append(lines, "", t.Error.Render(t.SymFail+" "+err.Error()))
		ui.Panel(lines)
		return 2
	}
	ui.Panel(lines)
	return 0
}

func doList(ctx context.Context, cfg *config.Config, st store.Store) int {
	items, err := firstSnapshot(ctx, st, cfg.Collection)
	if err != nil {
		ui.Fail("load: " + err.Error())
		return 1
	}
	t := ui.Current()
	lines := []string{
		fmt.Sprintf("%s   %s %d", t.Title.Render(tui.CardTitle), t.Accent.Render("Total"), len(items)),
		"",
	}
	lines = append(lines, flatLines(items)...)
	lines = append(lines, "", t.Muted.Render("Tip: add with `todo add \"Buy milk\"`"))
	ui.Panel(lines)
	return 0
}

func doAdd(ctx context.Context, cfg *config.Config, st store.Store, logger *log.Logger, text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		ui.Fail("add: empty text")
		return 2
	}
	id, err := st.Create(ctx, cfg.Collection, store.Fields{
		store.FieldText:      text,
		store.FieldCreatedAt: time.Now(),
	})
	if err != nil {
		logger.Error("add", "err", err)
		ui.Fail(syncer.MsgAddFailed)
		return 1
	}
	ui.OK("added " + id)
	return 0
}

func doEdit(ctx context.Context, cfg *config.Config, st store.Store, logger *log.Logger, ref, text string) int {
	if strings.TrimSpace(text) == "" {
		ui.Fail("edit: empty text")
		return 2
	}
	id, code := resolveID(ctx, cfg, st, ref)
	if code != 0 {
		return code
	}
	err := st.Update(ctx, cfg.Collection, id, store.Fields{
		store.FieldText:      text,
		store.FieldUpdatedAt: time.Now(),
	})
	if err != nil {
		logger.Error("update", "id", id, "err", err)
		if errors.Is(err, store.ErrNotFound) {
			ui.Fail("edit: no such item: " + id)
			return 2
		}
		ui.Fail(syncer.MsgUpdateFailed)
		return 1
	}
	ui.OK("updated")
	return 0
}

func doRemove(ctx context.Context, cfg *config.Config, st store.Store, logger *log.Logger, ref string) int {
	id, code := resolveID(ctx, cfg, st, ref)
	if code != 0 {
		return code
	}
	if err := st.Delete(ctx, cfg.Collection, id); err != nil {
		logger.Error("delete", "id", id, "err", err)
		ui.Fail(syncer.MsgDeleteFailed)
		return 1
	}
	ui.OK("removed")
	return 0
}

// resolveID maps a 1-based index from `todo ls` to a document id. Anything
// that is not an in-range number is taken as an id.
func resolveID(ctx context.Context, cfg *config.Config, st store.Store, ref string) (string, int) {
	n, err := strconv.Atoi(ref)
	if err != nil {
		return ref, 0
	}
	items, err := firstSnapshot(ctx, st, cfg.Collection)
	if err != nil {
		ui.Fail("load: " + err.Error())
		return "", 1
	}
	if n < 1 || n > len(items) {
		ui.Fail(fmt.Sprintf("index out of range: have %d, got %d", len(items), n))
		fmt.Fprintln(ui.Stderr, ui.Current().Muted.Render("Hint: run `todo ls` to see valid indexes"))
		return "", 2
	}
	return items[n-1].ID, 0
}

// firstSnapshot subscribes, takes the first event and unsubscribes.
func firstSnapshot(ctx context.Context, st store.Store, collection string) ([]model.Item, error) {
	sub, err := st.Subscribe(ctx, collection, store.NewestFirst)
	if err != nil {
		return nil, err
	}
	defer sub.Close()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			return nil, store.ErrClosed
		}
		if ev.Err != nil {
			return nil, ev.Err
		}
		return ev.Snapshot.Items, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// -------------- rendering helpers --------------

func flatLines(items []model.Item) []string {
	t := ui.Current()
	if len(items) == 0 {
		return []string{t.Muted.Render(tui.EmptyText)}
	}
	out := make([]string, 0, len(items))
	for i, it := range items {
		idx := fmt.Sprintf("%2d.", i+1)
		out = append(out, fmt.Sprintf("%s %s  %s",
			t.Muted.Render(idx), ui.Truncate(it.Text, 80), t.Muted.Render(shortID(it.ID))))
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

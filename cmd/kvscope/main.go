package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/chzyer/readline"

	"github.com/kvscope/kvscope/pkg/common/log"
	"github.com/kvscope/kvscope/pkg/dump"
	"github.com/kvscope/kvscope/pkg/engine"
	"github.com/kvscope/kvscope/pkg/session"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem(".help"),
	readline.PcItem(".open"),
	readline.PcItem(".close"),
	readline.PcItem(".exit"),
	readline.PcItem(".dbs"),
	readline.PcItem(".db"),
	readline.PcItem(".mkdb"),
	readline.PcItem(".stats"),
	readline.PcItem(".dump"),
	readline.PcItem(".load"),
	readline.PcItem("BEGIN"),
	readline.PcItem("COMMIT"),
	readline.PcItem("ROLLBACK"),
	readline.PcItem("PUT"),
	readline.PcItem("GET"),
	readline.PcItem("DELETE"),
	readline.PcItem("LIST"),
)

const helpText = `
kvscope - A transactional browser for embedded key-value stores.

Usage:
  kvscope [options] [database_path]  - Start with an optional database path

Options:
  -memory                 - Use an ephemeral in-memory store
  -readonly               - Open the store without write access
  -nosync                 - Skip fsync on commit (faster, less durable)
  -maxdbs N               - Maximum number of named databases (default 1000)
  -pagesize N             - Rows per LIST page (default 50)
  -loglevel LEVEL         - Log level: debug, info, warn, error (default warn)

Commands (interactive mode only):
  .help                   - Show this help message
  .open PATH              - Open a database file at PATH
  .close                  - Close the current database
  .exit                   - Exit the program
  .dbs                    - List named databases
  .db NAME                - Select the named database ({main} for the root)
  .mkdb NAME              - Create and select a named database (write session)
  .stats                  - Show engine statistics
  .dump FILE [CODEC]      - Export the selected database (codec: none, snappy, zstd)
  .load FILE              - Import a dump file (write session)

  BEGIN                   - Begin the exclusive write session
  COMMIT                  - Commit the write session
  ROLLBACK                - Discard the write session

  PUT key value           - Store a key-value pair
  GET key                 - Retrieve a value by key
  DELETE key              - Delete a key-value pair
  LIST [start [count]]    - List rows from the selected database

Keys and values are escaped text: \n \r \t \\ and \xHH denote bytes that
are not printable UTF-8, so any binary key or value can be typed and read.
`

func main() {
	cfg, memory, logLevel := parseFlags()

	log.GetDefaultLogger().SetLevel(log.ParseLevel(logLevel))

	var eng *engine.Engine
	var err error

	if cfg.Path != "" || memory {
		eng, err = engine.New(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %s\n", err)
			os.Exit(1)
		}
		defer eng.Close()
	}

	runInteractive(eng, cfg)
}

// parseFlags parses command line flags and returns the engine configuration,
// whether the in-memory backend was requested, and the requested log level.
func parseFlags() (engine.Config, bool, string) {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "kvscope - A transactional browser for embedded key-value stores\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: kvscope [options] [database_path]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nFor interactive commands, start kvscope and type .help\n")
	}

	memory := flag.Bool("memory", false, "Use an ephemeral in-memory store")
	readOnly := flag.Bool("readonly", false, "Open the store without write access")
	noSync := flag.Bool("nosync", false, "Skip fsync on commit")
	maxDBs := flag.Int("maxdbs", 1000, "Maximum number of named databases")
	pageSize := flag.Int("pagesize", 50, "Rows per LIST page")
	logLevel := flag.String("loglevel", "warn", "Log level: debug, info, warn, error")

	flag.Parse()

	var dbPath string
	if flag.NArg() > 0 {
		dbPath = flag.Arg(0)
	}

	cfg := engine.NewDefaultConfig(dbPath)
	if *memory {
		cfg.Backend = engine.BackendMemory
		cfg.Path = ""
	}
	cfg.ReadOnly = *readOnly
	cfg.NoSync = *noSync
	cfg.MaxCollections = *maxDBs
	cfg.PageSize = *pageSize

	return cfg, *memory, *logLevel
}

// prompt renders the current database and session state into the readline
// prompt.
func prompt(eng *engine.Engine) string {
	if eng == nil {
		return "kvscope> "
	}

	location := eng.Path()
	if location == ":memory:" {
		location = "memory"
	}
	name := eng.CollectionName()
	if name != "{main}" {
		location = location + "/" + name
	}

	if eng.Mode() == session.ModeWriting {
		return fmt.Sprintf("kvscope:%s[RW]> ", location)
	}
	return fmt.Sprintf("kvscope:%s> ", location)
}

// runInteractive starts the interactive CLI mode
func runInteractive(eng *engine.Engine, cfg engine.Config) {
	fmt.Println("kvscope version 1.0.0")
	fmt.Println("Enter .help for usage hints.")

	historyFile := filepath.Join(os.TempDir(), ".kvscope_history")
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "kvscope> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing readline: %s\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		rl.SetPrompt(prompt(eng))

		line, readErr := rl.Readline()
		if readErr != nil {
			if readErr == readline.ErrInterrupt {
				if len(line) == 0 {
					break
				}
				continue
			} else if readErr == io.EOF {
				fmt.Println("Goodbye!")
				break
			}
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", readErr)
			continue
		}

		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToUpper(parts[0])

		// Special dot commands
		if strings.HasPrefix(cmd, ".") {
			cmd = strings.ToLower(cmd)
			switch cmd {
			case ".help":
				fmt.Print(helpText)

			case ".open":
				if len(parts) < 2 {
					fmt.Println("Error: Missing path argument")
					continue
				}

				if eng != nil {
					eng.Close()
					eng = nil
				}

				next := cfg
				next.Path = parts[1]
				next.Backend = engine.BackendBolt
				eng, err = engine.New(next)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error opening database: %s\n", err)
					continue
				}
				fmt.Printf("Database opened at %s\n", parts[1])

			case ".close":
				if eng == nil {
					fmt.Println("No database open")
					continue
				}

				path := eng.Path()
				if err := eng.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Error closing database: %s\n", err)
				} else {
					fmt.Printf("Database %s closed\n", path)
					eng = nil
				}

			case ".exit":
				if eng != nil {
					eng.Close()
				}
				fmt.Println("Goodbye!")
				return

			case ".dbs":
				if eng == nil {
					fmt.Println("No database open")
					continue
				}

				names := eng.Collections()
				fmt.Println("{main}")
				for _, name := range names {
					fmt.Println(name)
				}

			case ".db":
				if eng == nil {
					fmt.Println("No database open")
					continue
				}
				if len(parts) < 2 {
					fmt.Println("Error: Missing database name")
					continue
				}

				name := parts[1]
				if name == "{main}" {
					name = ""
				}
				found, err := eng.SelectCollection(name)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error selecting database: %s\n", err)
					continue
				}
				if !found {
					fmt.Printf("No such database: %s (create it with .mkdb)\n", parts[1])
					continue
				}
				fmt.Printf("Selected %s\n", eng.CollectionName())

			case ".mkdb":
				if eng == nil {
					fmt.Println("No database open")
					continue
				}
				if len(parts) < 2 {
					fmt.Println("Error: Missing database name")
					continue
				}

				if err := eng.CreateCollection(parts[1]); err != nil {
					if errors.Is(err, session.ErrInvalidState) {
						fmt.Println("Error: Creating a database requires a write session (BEGIN first)")
					} else {
						fmt.Fprintf(os.Stderr, "Error creating database: %s\n", err)
					}
					continue
				}
				fmt.Printf("Created and selected %s\n", parts[1])

			case ".stats":
				if eng == nil {
					fmt.Println("No database open")
					continue
				}
				printStats(eng.GetStats())

			case ".dump":
				if eng == nil {
					fmt.Println("No database open")
					continue
				}
				if len(parts) < 2 {
					fmt.Println("Error: Missing file argument")
					continue
				}

				codecName := ""
				if len(parts) >= 3 {
					codecName = parts[2]
				}
				c, err := dump.ParseCodec(codecName)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: %s\n", err)
					continue
				}

				f, err := os.Create(parts[1])
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error creating dump file: %s\n", err)
					continue
				}

				startTime := time.Now()
				n, err := eng.Dump(f, c)
				closeErr := f.Close()
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error dumping: %s\n", err)
					continue
				}
				if closeErr != nil {
					fmt.Fprintf(os.Stderr, "Error closing dump file: %s\n", closeErr)
					continue
				}
				fmt.Printf("Dumped %d entries from %s (%.2f ms)\n",
					n, eng.CollectionName(), float64(time.Since(startTime).Microseconds())/1000.0)

			case ".load":
				if eng == nil {
					fmt.Println("No database open")
					continue
				}
				if len(parts) < 2 {
					fmt.Println("Error: Missing file argument")
					continue
				}

				f, err := os.Open(parts[1])
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error opening dump file: %s\n", err)
					continue
				}

				name, n, err := eng.Load(f)
				f.Close()
				if err != nil {
					if errors.Is(err, session.ErrInvalidState) {
						fmt.Println("Error: Loading requires a write session (BEGIN first)")
					} else {
						fmt.Fprintf(os.Stderr, "Error loading: %s\n", err)
					}
					continue
				}
				fmt.Printf("Loaded %d entries into %s (COMMIT to keep them)\n", n, name)

			default:
				fmt.Printf("Unknown command: %s\n", cmd)
			}
			continue
		}

		if eng == nil {
			fmt.Println("Error: No database open")
			continue
		}

		// Regular commands
		switch cmd {
		case "BEGIN":
			if err := eng.BeginWrite(); err != nil {
				fmt.Fprintf(os.Stderr, "Error beginning write session: %s\n", err)
				continue
			}
			fmt.Println("Started write session")

		case "COMMIT":
			startTime := time.Now()
			if err := eng.Commit(); err != nil {
				if errors.Is(err, session.ErrInvalidState) {
					fmt.Println("Error: No write session in progress")
				} else {
					fmt.Fprintf(os.Stderr, "Error committing: %s\n", err)
				}
				continue
			}
			fmt.Printf("Committed (%.2f ms)\n", float64(time.Since(startTime).Microseconds())/1000.0)

		case "ROLLBACK":
			if err := eng.Abort(); err != nil {
				if errors.Is(err, session.ErrInvalidState) {
					fmt.Println("Error: No write session in progress")
				} else {
					fmt.Fprintf(os.Stderr, "Error rolling back: %s\n", err)
				}
				continue
			}
			fmt.Println("Rolled back")

		case "PUT":
			if len(parts) < 3 {
				fmt.Println("Error: PUT requires key and value arguments")
				continue
			}

			eng.StageEdit(parts[1], strings.Join(parts[2:], " "))
			if err := eng.Insert(); err != nil {
				if errors.Is(err, session.ErrInvalidState) {
					fmt.Println("Error: PUT requires a write session (BEGIN first)")
				} else {
					fmt.Fprintf(os.Stderr, "Error putting: %s\n", err)
				}
				continue
			}
			fmt.Println("Ok")

		case "GET":
			if len(parts) < 2 {
				fmt.Println("Error: GET requires a key argument")
				continue
			}

			value, found, err := eng.Get(parts[1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error getting: %s\n", err)
				continue
			}
			if !found {
				fmt.Printf("Key not found: %s\n", parts[1])
				continue
			}
			fmt.Println(value)

		case "DELETE":
			if len(parts) < 2 {
				fmt.Println("Error: DELETE requires a key argument")
				continue
			}

			eng.StageEdit(parts[1], "")
			if err := eng.Delete(); err != nil {
				if errors.Is(err, session.ErrInvalidState) {
					fmt.Println("Error: DELETE requires a write session (BEGIN first)")
				} else {
					fmt.Fprintf(os.Stderr, "Error deleting: %s\n", err)
				}
				continue
			}
			fmt.Println("Ok")

		case "LIST":
			start := 0
			count := 0
			var parseErr error
			if len(parts) >= 2 {
				start, parseErr = strconv.Atoi(parts[1])
				if parseErr != nil || start < 0 {
					fmt.Println("Error: start must be a non-negative integer")
					continue
				}
			}
			if len(parts) >= 3 {
				count, parseErr = strconv.Atoi(parts[2])
				if parseErr != nil || count < 0 {
					fmt.Println("Error: count must be a non-negative integer")
					continue
				}
			}

			view := eng.Rows(start, count)
			if view.LastErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: %s\n", view.LastErr)
			}
			for i, row := range view.Rows {
				fmt.Printf("%6d  %s => %s\n", start+i, row.Key, row.Value)
			}
			fmt.Printf("%d of %d rows in %s\n", len(view.Rows), view.Total, eng.CollectionName())

		default:
			fmt.Printf("Unknown command: %s\n", cmd)
		}
	}
}

// printStats renders the engine's statistics map in sections.
func printStats(stats map[string]interface{}) {
	getUint64 := func(key string) uint64 {
		switch v := stats[key].(type) {
		case uint64:
			return v
		case int64:
			return uint64(v)
		case int:
			return uint64(v)
		default:
			return 0
		}
	}
	formatTime := func(key string) string {
		if ts, ok := stats[key].(string); ok && ts != "" {
			return ts
		}
		return "Never"
	}

	fmt.Println("Operations:")
	fmt.Printf("  Puts: %d\n", getUint64("put_ops"))
	fmt.Printf("  Gets: %d\n", getUint64("get_ops"))
	fmt.Printf("  Deletes: %d\n", getUint64("delete_ops"))
	fmt.Printf("  Rows served: %d\n", getUint64("rows_ops"))
	fmt.Printf("  Last Put: %s\n", formatTime("last_put_time"))

	fmt.Println("\nSessions:")
	fmt.Printf("  Write sessions: %d\n", getUint64("begin_write_ops"))
	fmt.Printf("  Commits: %d\n", getUint64("commit_ops"))
	fmt.Printf("  Rollbacks: %d\n", getUint64("abort_ops"))
	fmt.Printf("  Last Commit: %s\n", formatTime("last_commit_time"))

	fmt.Println("\nCursor:")
	fmt.Printf("  Reuses: %d\n", getUint64("cursor_reuse_ops"))
	fmt.Printf("  Reseeks: %d\n", getUint64("cursor_reseek_ops"))

	fmt.Println("\nTransfers:")
	fmt.Printf("  Dumps: %d\n", getUint64("dump_ops"))
	fmt.Printf("  Loads: %d\n", getUint64("load_ops"))

	var errKeys []string
	for key := range stats {
		if strings.HasPrefix(key, "error_") {
			errKeys = append(errKeys, key)
		}
	}
	if len(errKeys) > 0 {
		sort.Strings(errKeys)
		fmt.Println("\nErrors:")
		for _, key := range errKeys {
			displayKey := toTitle(strings.Replace(strings.TrimPrefix(key, "error_"), "_", " ", -1))
			fmt.Printf("  %s: %v\n", displayKey, stats[key])
		}
	}

	fmt.Println("\nState:")
	fmt.Printf("  Path: %v\n", stats["path"])
	fmt.Printf("  Database: %v\n", stats["collection"])
	fmt.Printf("  Mode: %v\n", stats["mode"])
}

// toTitle replaces strings.Title which was deprecated
func toTitle(s string) string {
	prev := ' '
	return strings.Map(
		func(r rune) rune {
			if unicode.IsSpace(prev) {
				prev = r
				return unicode.ToUpper(r)
			}
			prev = r
			return r
		},
		s)
}

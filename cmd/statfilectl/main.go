// statfilectl is a small interactive CLI for inspecting and exercising
// statfile pools.
//
// Usage:
//
//	statfilectl --path <file>                   Open an existing statfile
//	statfilectl --path <file> --size N --new    Create a new statfile
//
// Commands (in REPL):
//
//	put <h1> <h2> <value>    Insert or update an entry (hex or decimal h1/h2)
//	get <h1> <h2>            Retrieve an entry
//	info                     Show header/pool info
//	reindex <size>           Resize the open file in place
//	lockall                  Attempt mlock on every open handle
//	flush                    msync every open handle immediately
//	help                     Show this help
//	exit / quit / q          Exit
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/pflag"

	"github.com/rspamd/statfile"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("statfilectl", pflag.ExitOnError)

	path := fs.StringP("path", "p", "", "statfile path")
	size := fs.Int64P("size", "s", 1<<20, "size in bytes for --new; an existing file more than 512 bytes off this size is reindexed to it on open")
	createNew := fs.BoolP("new", "n", false, "create a new statfile at --path")
	mlock := fs.BoolP("mlock", "m", false, "enable mlock for the pool")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: statfilectl --path <file> [--new --size N] [--mlock]\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return err
	}

	if *path == "" {
		fs.Usage()
		return errors.New("missing --path")
	}

	pool := statfile.NewPool(statfile.PoolConfig{MlockEnabled: *mlock}, nil, nil, statfile.NewSlogLogger(nil))

	if *createNew {
		if err := pool.Create(*path, *size); err != nil {
			return fmt.Errorf("creating %s: %w", *path, err)
		}
	}

	handle, err := pool.Open(*path, *size, *createNew)
	if err != nil {
		return fmt.Errorf("opening %s: %w", *path, err)
	}

	repl := &repl{pool: pool, handle: handle, path: *path}

	return repl.run()
}

type repl struct {
	pool   *statfile.Pool
	handle *statfile.Handle
	path   string
	liner  *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".statfilectl_history")
}

func (r *repl) run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("statfilectl - %s (total_blocks=%d)\n", r.path, r.handle.TotalBlocks())
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("statfilectl> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return r.pool.DestroyPool()

		case "help", "?":
			r.printHelp()

		case "put":
			r.cmdPut(args)

		case "get":
			r.cmdGet(args)

		case "info":
			r.cmdInfo()

		case "reindex":
			r.cmdReindex(args)

		case "lockall":
			r.cmdLockAll()

		case "flush":
			r.cmdFlush()

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return r.pool.DestroyPool()
}

func (r *repl) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *repl) completer(line string) []string {
	commands := []string{"put", "get", "info", "reindex", "lockall", "flush", "help", "exit", "quit", "q"}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *repl) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  put <h1> <h2> <value>   Insert or update an entry")
	fmt.Println("  get <h1> <h2>           Retrieve an entry")
	fmt.Println("  info                    Show header/pool info")
	fmt.Println("  reindex <size>          Resize the open file in place")
	fmt.Println("  lockall                 Attempt mlock on every open handle")
	fmt.Println("  flush                   msync every open handle immediately")
	fmt.Println("  help                    Show this help")
	fmt.Println("  exit / quit / q         Exit")
	fmt.Println()
	fmt.Println("h1/h2: hex (e.g. 0x11111111) or decimal.")
}

func parseHash(s string) (uint32, error) {
	lower := strings.ToLower(s)

	var (
		v   uint64
		err error
	)

	if hex, ok := strings.CutPrefix(lower, "0x"); ok {
		v, err = strconv.ParseUint(hex, 16, 32)
	} else {
		v, err = strconv.ParseUint(lower, 10, 32)
	}

	if err != nil {
		return 0, fmt.Errorf("invalid hash %q", s)
	}

	return uint32(v), nil
}

func (r *repl) cmdPut(args []string) {
	if len(args) < 3 {
		fmt.Println("Usage: put <h1> <h2> <value>")
		return
	}

	h1, err := parseHash(args[0])
	if err != nil {
		fmt.Println(err)
		return
	}

	h2, err := parseHash(args[1])
	if err != nil {
		fmt.Println(err)
		return
	}

	value, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		fmt.Printf("invalid value %q\n", args[2])
		return
	}

	r.handle.Put(h1, h2, time.Now(), value, true)
	fmt.Printf("OK: put (0x%08x, 0x%08x) = %v\n", h1, h2, value)
}

func (r *repl) cmdGet(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: get <h1> <h2>")
		return
	}

	h1, err := parseHash(args[0])
	if err != nil {
		fmt.Println(err)
		return
	}

	h2, err := parseHash(args[1])
	if err != nil {
		fmt.Println(err)
		return
	}

	value := r.handle.Get(h1, h2, time.Now())
	fmt.Printf("%v\n", value)
}

func (r *repl) cmdInfo() {
	rev, revTime := r.handle.GetRevision()

	fmt.Printf("Path:         %s\n", r.handle.Path())
	fmt.Printf("Total blocks: %d\n", r.handle.TotalBlocks())
	fmt.Printf("Used blocks:  %d (advisory)\n", r.handle.UsedBlocks())
	fmt.Printf("Revision:     %d (at %s)\n", rev, revTime.Format(time.RFC3339))
}

func (r *repl) cmdReindex(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: reindex <size>")
		return
	}

	size, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Printf("invalid size %q\n", args[0])
		return
	}

	if err := r.pool.Close(r.path); err != nil {
		fmt.Printf("Error closing before reindex: %v\n", err)
		return
	}

	h, err := r.pool.Open(r.path, size, false)
	if err != nil {
		fmt.Printf("Error reindexing: %v\n", err)
		return
	}

	r.handle = h
	fmt.Printf("OK: reindexed to %d bytes (total_blocks=%d)\n", size, h.TotalBlocks())
}

func (r *repl) cmdLockAll() {
	if err := r.pool.LockAll(); err != nil {
		fmt.Printf("mlock failed, pool mlock policy disabled: %v\n", err)
		return
	}

	fmt.Println("OK: mlock applied to all open handles")
}

func (r *repl) cmdFlush() {
	r.pool.PlanInvalidate(0, 0)
	fmt.Println("OK: flush scheduled immediately")
}

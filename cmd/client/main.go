package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/NicolasHaas/relaychat/pkg/client"
	"github.com/NicolasHaas/relaychat/pkg/logging"
	"github.com/NicolasHaas/relaychat/pkg/protocol"
	"github.com/NicolasHaas/relaychat/pkg/version"
)

func main() {
	addr := flag.String("addr", "", "Server address (default: last used, else "+defaultAddr+")")
	retries := flag.Uint64("retries", 5, "Connection attempts before giving up")
	bookmarksFile := flag.String("bookmarks", client.DefaultBookmarkPath(), "YAML file remembering servers and usernames")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("relaychat client", version.Full())
		return
	}

	// Default to "warn" so log lines don't mix with chat output; override with
	// RELAYCHAT_LOG_LEVEL (debug, info, warn, error).
	level := "warn"
	if v := os.Getenv("RELAYCHAT_LOG_LEVEL"); v != "" {
		level = v
	}
	format := "text"
	if v := os.Getenv("RELAYCHAT_LOG_FORMAT"); v != "" {
		format = v
	}
	_ = logging.Setup(logging.Options{
		Level:  level,
		Format: format,
		Output: os.Stderr,
	})

	bookmarks := client.NewBookmarkStore(*bookmarksFile)
	if err := bookmarks.Load(); err != nil {
		slog.Warn("load bookmarks", "path", *bookmarksFile, "err", err)
	}
	if *addr == "" {
		*addr = defaultAddr
		if b := bookmarks.Latest(); b != nil {
			*addr = b.Addr
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.DialWithRetry(ctx, *addr, *retries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot reach server at %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	// Closing the connection on a signal unblocks whatever is waiting on it.
	go func() {
		<-ctx.Done()
		_ = c.Exit()
	}()

	suggested := ""
	if b := bookmarks.FindByAddr(*addr); b != nil {
		suggested = b.Username
	}

	in := bufio.NewScanner(os.Stdin)
	username, ok := authenticate(c, in, os.Stdout, suggested)
	if !ok {
		_ = c.Exit()
		return
	}

	bookmarks.Touch(*addr, username, time.Now().Unix())
	if err := bookmarks.Save(); err != nil {
		slog.Warn("save bookmarks", "path", *bookmarksFile, "err", err)
	}

	chat(c, in, os.Stdout)
}

const defaultAddr = "127.0.0.1:8888"

func prompt(in *bufio.Scanner, out io.Writer, label string) (string, bool) {
	fmt.Fprint(out, label)
	if !in.Scan() {
		return "", false
	}
	return strings.TrimSpace(in.Text()), true
}

// authenticate runs the login/register menu until a login succeeds and
// returns the logged-in username. ok is false when the user quits or the
// connection fails. An empty username answer picks suggested.
func authenticate(c *client.Client, in *bufio.Scanner, out io.Writer, suggested string) (string, bool) {
	for {
		fmt.Fprintln(out, "\n1. Log in\n2. Register\n3. Quit")
		choice, ok := prompt(in, out, "\nChoose (1-3): ")
		if !ok || choice == "3" {
			return "", false
		}
		if choice != "1" && choice != "2" {
			fmt.Fprintln(out, "Invalid choice")
			continue
		}

		label := "Username: "
		if suggested != "" {
			label = fmt.Sprintf("Username [%s]: ", suggested)
		}
		username, ok := prompt(in, out, label)
		if !ok {
			return "", false
		}
		if username == "" {
			username = suggested
		}
		password, ok := prompt(in, out, "Password: ")
		if !ok {
			return "", false
		}
		if username == "" || password == "" {
			fmt.Fprintln(out, "Username and password are required")
			continue
		}

		if choice == "2" {
			reply, err := c.Register(username, password)
			if err != nil {
				fmt.Fprintf(out, "Connection error: %v\n", err)
				return "", false
			}
			fmt.Fprintln(out, client.Format(reply))
			continue
		}

		reply, err := c.Login(username, password)
		if err != nil {
			fmt.Fprintf(out, "Connection error: %v\n", err)
			return "", false
		}
		fmt.Fprintln(out, client.Format(reply))
		if reply.Succeeded() {
			slog.Debug("logged in", "user", username)
			return username, true
		}
	}
}

// chat prints server frames in the background and relays stdin lines until
// /exit, end of input or a lost connection.
func chat(c *client.Client, in *bufio.Scanner, out io.Writer) {
	c.StartReceiving(func(msg *protocol.Message) {
		if line := client.Format(msg); line != "" {
			fmt.Fprintf(out, "\n%s\n> ", line)
		}
	})
	fmt.Fprintln(out, client.HelpText)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for in.Scan() {
			lines <- in.Text()
		}
	}()

	for {
		fmt.Fprint(out, "> ")
		select {
		case <-c.Done():
			fmt.Fprintln(out, "\nConnection to server lost")
			return
		case line, ok := <-lines:
			if !ok {
				_ = c.Exit()
				return
			}
			if !handleLine(c, strings.TrimSpace(line), out) {
				return
			}
		}
	}
}

func handleLine(c *client.Client, text string, out io.Writer) bool {
	var err error
	switch text {
	case "":
		return true
	case "/help":
		fmt.Fprintln(out, client.HelpText)
	case "/online":
		err = c.RequestOnline()
	case "/exit":
		fmt.Fprintln(out, "Goodbye!")
		_ = c.Exit()
		return false
	default:
		err = c.Chat(text)
	}
	if err != nil {
		fmt.Fprintf(out, "send failed: %v\n", err)
		return false
	}
	return true
}

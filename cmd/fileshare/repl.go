package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/term"

	"fileshare/internal/app"
	"fileshare/internal/client"
	"fileshare/internal/config"
	"fileshare/internal/fileshare"
)

const replHelp = `Commands:
  list                         list files on the server
  upload <path>                upload a local file
  download <name> [dir]        download a stored file
  delete <name>                delete one of your files
  update <path>                pick one of your files and replace it with a local file
  update <name> <path>         replace the named file with a local file
  status                       show the connection state
  connect <username>           reconnect with a new username
  exit                         leave the server
  help                         show this help`

// console serializes output from the prompt, the progress line and the
// notification listener.
type console struct {
	mu       sync.Mutex
	out      io.Writer
	tty      bool
	progress bool
}

func (c *console) println(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.progress {
		fmt.Fprintln(c.out)
		c.progress = false
	}
	fmt.Fprintf(c.out, format+"\n", args...)
}

// showProgress redraws a single status line on a terminal. Redirected
// output only gets the completion line.
func (c *console) showProgress(p fileshare.Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tty {
		fmt.Fprintf(c.out, "\r\033[K%s %s", p.FileName, p.String())
		c.progress = true
		return
	}
	if p.BytesMoved == p.TotalSize {
		fmt.Fprintf(c.out, "%s %s\n", p.FileName, p.String())
	}
}

func runREPL(ctx context.Context, cfg *config.Config, addr, username string, verbose bool) error {
	con := &console{out: os.Stdout, tty: term.IsTerminal(int(os.Stdout.Fd()))}

	hooks := app.ClientHooks{
		OnNotification: func(text string) { con.println("[notification] %s", text) },
		OnProgress:     con.showProgress,
		OnDisconnect: func(err error) {
			if err != nil {
				con.println("Disconnected: %v", err)
			}
		},
	}
	logOpts := app.LogOptions{Verbose: verbose}
	if verbose {
		logOpts.Echo = os.Stderr
	}

	a, err := app.NewClientApp(cfg, hooks, logOpts)
	if err != nil {
		return fmt.Errorf("initializing client: %w", err)
	}
	defer a.Close()

	in := bufio.NewScanner(os.Stdin)
	if username == "" {
		fmt.Print("Username: ")
		if !in.Scan() {
			return in.Err()
		}
		username = strings.TrimSpace(in.Text())
	}

	if err := a.Connect(ctx, addr, username); err != nil {
		return err
	}
	con.println("Connected as %s. Type 'help' for commands.", username)

	for {
		fmt.Print("> ")
		if !in.Scan() {
			return in.Err()
		}
		fields := strings.Fields(in.Text())
		if len(fields) == 0 {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		quit, err := runCommand(ctx, a, con, in, addr, fields)
		if err != nil {
			con.println("%s", describe(err))
		}
		if quit {
			return nil
		}
	}
}

func runCommand(ctx context.Context, a *app.ClientApp, con *console, in *bufio.Scanner, addr string, fields []string) (quit bool, err error) {
	c := a.Client()
	switch cmd, args := fields[0], fields[1:]; cmd {
	case "help", "?":
		con.println("%s", replHelp)
	case "status":
		con.println("%s as %s", c.State(), c.Username())
	case "list", "ls":
		names, err := c.List(ctx)
		if err != nil {
			return false, err
		}
		if len(names) == 0 {
			con.println("There is no file in server.")
		}
		for _, n := range names {
			con.println("  %s", n)
		}
	case "upload":
		if len(args) != 1 {
			return false, errors.New("usage: upload <path>")
		}
		msg, err := c.Upload(ctx, args[0])
		if err != nil {
			return false, err
		}
		con.println("%s", msg)
	case "download":
		if len(args) < 1 || len(args) > 2 {
			return false, errors.New("usage: download <name> [dir]")
		}
		dir := a.DownloadDir()
		if len(args) == 2 {
			dir = args[1]
		}
		path, err := c.Download(ctx, args[0], dir)
		if err != nil {
			return false, err
		}
		con.println("Downloaded to %s", path)
	case "delete", "rm":
		if len(args) != 1 {
			return false, errors.New("usage: delete <name>")
		}
		msg, err := c.Delete(ctx, args[0])
		if err != nil {
			return false, err
		}
		con.println("%s", msg)
	case "update":
		var name, path string
		switch len(args) {
		case 1:
			path = args[0]
			if name, err = pickOwned(ctx, c, con, in); err != nil {
				return false, err
			}
		case 2:
			name, path = args[0], args[1]
		default:
			return false, errors.New("usage: update [name] <path>")
		}
		msg, err := c.Update(ctx, name, path)
		if err != nil {
			return false, err
		}
		con.println("%s", msg)
	case "connect":
		if len(args) != 1 {
			return false, errors.New("usage: connect <username>")
		}
		if c.State() != client.Disconnected {
			return false, errors.New("already connected; exit first")
		}
		if err := a.Connect(ctx, addr, args[0]); err != nil {
			return false, err
		}
		con.println("Connected as %s.", args[0])
	case "exit", "quit":
		if c.State() == client.Disconnected {
			return true, nil
		}
		return true, c.Exit(ctx)
	default:
		return false, fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
	return false, nil
}

// pickOwned shows the user's stored files from the listing and reads a choice.
func pickOwned(ctx context.Context, c *client.Client, con *console, in *bufio.Scanner) (string, error) {
	owned, err := c.OwnedFiles(ctx)
	if err != nil {
		return "", err
	}
	if len(owned) == 0 {
		return "", errors.New("you have no files on the server")
	}
	for i, name := range owned {
		label := name
		if f, err := fileshare.ParseStoredName(name); err == nil {
			label = fmt.Sprintf("%s (%s)", f.BaseName, name)
		}
		con.println("  %d) %s", i+1, label)
	}

	fmt.Print("File number: ")
	if !in.Scan() {
		return "", errors.New("no file chosen")
	}
	choice := strings.TrimSpace(in.Text())
	i, err := strconv.Atoi(choice)
	if err != nil || i < 1 || i > len(owned) {
		return "", fmt.Errorf("invalid choice %q", choice)
	}
	return owned[i-1], nil
}

// describe renders err the way the server phrased it when it came from the server.
func describe(err error) string {
	var remote *client.RemoteError
	if errors.As(err, &remote) {
		return "ERROR: " + remote.Text
	}
	if errors.Is(err, client.ErrNotConnected) {
		return "Not connected. Use 'connect <username>' to claim a new username."
	}
	return "Error: " + err.Error()
}

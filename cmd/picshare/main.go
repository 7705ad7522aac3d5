package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"picshare/internal/client"
)

const usage = `usage: picshare [flags] <command> [args]

commands:
  register <fullName> <email> <username> <password> <avatarPath>
  login <username|email> <password>
  logout
  refresh
  me
  profile <username>
  upload <imagePath> [description]
  get <imageId>
  delete <imageId>
  recent [page] [limit]

flags:
`

func main() {
	fs := flag.NewFlagSet("picshare", flag.ExitOnError)
	server := fs.String("server", envOr("PICSHARE_SERVER", "http://localhost:5000/api/v1"), "API base URL")
	sessionPath := fs.String("session", "", "session file (default: user config dir)")
	timeout := fs.Duration("timeout", 30*time.Second, "request timeout")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	path := *sessionPath
	if path == "" {
		var err error
		path, err = client.DefaultSessionPath()
		if err != nil {
			fail(err)
		}
	}

	c := client.New(*server, client.NewFileSessionStore(path), nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := run(ctx, c, fs.Arg(0), fs.Args()[1:]); err != nil {
		fail(err)
	}
}

func run(ctx context.Context, c *client.Client, cmd string, args []string) error {
	switch cmd {
	case "register":
		if len(args) != 5 {
			return fmt.Errorf("register needs <fullName> <email> <username> <password> <avatarPath>")
		}
		user, err := c.Register(ctx, client.RegisterParams{
			FullName:   args[0],
			Email:      args[1],
			Username:   args[2],
			Password:   args[3],
			AvatarPath: args[4],
		})
		if err != nil {
			return err
		}
		return printJSON(user)

	case "login":
		if len(args) != 2 {
			return fmt.Errorf("login needs <username|email> <password>")
		}
		session, err := c.Login(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("logged in as %s\n", session.User.Username)
		return nil

	case "logout":
		if err := c.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("logged out")
		return nil

	case "refresh":
		if _, err := c.Refresh(ctx); err != nil {
			return err
		}
		fmt.Println("session refreshed")
		return nil

	case "me":
		user, err := c.Me(ctx)
		if err != nil {
			return err
		}
		return printJSON(user)

	case "profile":
		if len(args) != 1 {
			return fmt.Errorf("profile needs <username>")
		}
		profile, err := c.Profile(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(profile)

	case "upload":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("upload needs <imagePath> [description]")
		}
		description := ""
		if len(args) == 2 {
			description = args[1]
		}
		image, err := c.Upload(ctx, args[0], description)
		if err != nil {
			return err
		}
		return printJSON(image)

	case "get":
		if len(args) != 1 {
			return fmt.Errorf("get needs <imageId>")
		}
		image, err := c.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(image)

	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("delete needs <imageId>")
		}
		if err := c.Delete(ctx, args[0]); err != nil {
			return err
		}
		fmt.Println("deleted")
		return nil

	case "recent":
		page, limit, err := pageArgs(args)
		if err != nil {
			return err
		}
		recent, err := c.Recent(ctx, page, limit)
		if err != nil {
			return err
		}
		return printJSON(recent)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func pageArgs(args []string) (int, int, error) {
	var page, limit int
	var err error
	if len(args) > 0 {
		if page, err = strconv.Atoi(args[0]); err != nil {
			return 0, 0, fmt.Errorf("invalid page %q", args[0])
		}
	}
	if len(args) > 1 {
		if limit, err = strconv.Atoi(args[1]); err != nil {
			return 0, 0, fmt.Errorf("invalid limit %q", args[1])
		}
	}
	return page, limit, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "picshare:", err)
	os.Exit(1)
}

// emojictl runs maintenance tasks against the emoji store without starting
// the HTTP server. It reads the same environment, config file and flags as
// the api binary.
//
//	emojictl migrate
//	emojictl useradd <username> <password>
//	emojictl import <seed.yaml>
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"naija-emoji-api/core"
)

var knownCommands = map[string]bool{
	"migrate": true,
	"useradd": true,
	"import":  true,
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		printUsage()
		return nil
	}
	command := args[0]
	if !knownCommands[command] {
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}

	cfg, fs, err := core.LoadConfig("emojictl "+command, args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	log.SetLevel(log.WarnLevel)
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil && lvl > log.WarnLevel {
		log.SetLevel(lvl)
	}

	ctx := context.Background()
	store, err := core.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	switch command {
	case "migrate":
		fmt.Printf("%s store is up to date\n", store.Backend)
		return nil

	case "useradd":
		if fs.NArg() != 2 {
			return errors.New("usage: emojictl useradd <username> <password>")
		}
		auth, err := core.NewAuthServiceFromConfig(cfg, store.Users, nil)
		if err != nil {
			return err
		}
		u, err := auth.Register(ctx, fs.Arg(0), fs.Arg(1))
		if err != nil {
			return err
		}
		fmt.Printf("created user %s (id %d)\n", u.Username, u.ID)
		return nil

	case "import":
		if fs.NArg() != 1 {
			return errors.New("usage: emojictl import <seed.yaml>")
		}
		doc, err := core.LoadSeedFile(fs.Arg(0))
		if err != nil {
			return err
		}
		auth, err := core.NewAuthServiceFromConfig(cfg, store.Users, nil)
		if err != nil {
			return err
		}
		res, err := core.ImportSeed(ctx, store, auth, doc, time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("users created=%d skipped=%d, emoji created=%d\n", res.UsersCreated, res.UsersSkipped, res.EmojisCreated)
		return nil

	}
	return nil
}

func printUsage() {
	fmt.Fprint(os.Stderr, `usage: emojictl <command> [flags] [args]

commands:
  migrate                         apply database migrations
  useradd <username> <password>   register a user
  import <seed.yaml>              import users and emoji from a YAML seed

Run "emojictl <command> --help" for the shared configuration flags.
`)
}

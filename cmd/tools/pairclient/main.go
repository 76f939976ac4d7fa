package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	pairclient "github.com/studyhall/pairhub/internal/client/pair"
	"github.com/studyhall/pairhub/internal/config"
)

var (
	serverURL string
	username  string
	userID    string
	verbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "pairclient",
	Short: "Command-line client for the pair-programming relay",
	Long: `Create, inspect, extend and join pair-programming sessions.

Settings come from the environment (PAIR_SERVER_URL, PAIR_STORE_PATH, ...)
or a .env file; flags override them.

Quick Start:
  pairclient create                  # create a session and remember it
  pairclient join                    # join the remembered session
  pairclient info <session-id>       # check that a session still exists`,
	SilenceUsage: true,
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Relay base URL (overrides PAIR_SERVER_URL)")
	rootCmd.PersistentFlags().StringVarP(&username, "user", "u", "", "Display name shown to peers")
	rootCmd.PersistentFlags().StringVar(&userID, "user-id", "", "Numeric account id attached to joins")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log connection activity to stderr")

	rootCmd.AddCommand(createCmd, infoCmd, extendCmd, joinCmd)
}

// newClient builds a client from the environment plus flag overrides.
func newClient() (*pairclient.Client, error) {
	if err := godotenv.Load(); err != nil && verbose {
		log.Printf("[pairclient] no .env loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	opts, err := pairclient.OptionsFromConfig(cfg.Client)
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		opts.ServerURL = serverURL
	}
	if username != "" {
		opts.Username = username
	}
	if userID != "" {
		id, err := strconv.ParseInt(userID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --user-id %q: %w", userID, err)
		}
		opts.UserID = &id
	}
	if !verbose {
		opts.Logger = log.New(io.Discard, "", 0)
	}

	return pairclient.New(opts)
}

// resolveSessionID returns the explicit argument or the remembered id.
func resolveSessionID(c *pairclient.Client, args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	id, err := c.LoadSessionFromStorage()
	if err != nil {
		return "", fmt.Errorf("read stored session: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("no session id given and none stored; run 'pairclient create' first")
	}
	return id, nil
}

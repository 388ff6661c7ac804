// Command garage-cli is the member and administrator client of a
// garage-node: it manages identities, polls and votes over the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/garagevoting/garage-node/api/client"
	"github.com/garagevoting/garage-node/log"
)

const (
	programName    = "garage-cli"
	defaultHost    = "http://localhost:9090"
	requestTimeout = 2 * time.Minute
)

var globalFlags = struct {
	host    string
	token   string
	debug   bool
	retries int
}{}

func commonRun() {
	level := "warn"
	if globalFlags.debug {
		level = "debug"
	}
	log.Init(level, "stderr", nil)
}

// newClient connects to the configured node, authenticated when a token is
// set.
func newClient() (*client.HTTPclient, error) {
	cli, err := client.New(globalFlags.host)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", globalFlags.host, err)
	}
	if globalFlags.token != "" {
		cli.SetToken(globalFlags.token)
	}
	if globalFlags.retries > 0 {
		cli.SetRetries(globalFlags.retries)
	}
	return cli, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func rootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Anonymous poll voting client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			commonRun()
		},
	}
	rootCmd.PersistentFlags().StringVar(&globalFlags.host, "host", defaultHost, "garage-node API URL")
	rootCmd.PersistentFlags().StringVar(&globalFlags.token, "token", os.Getenv("GARAGE_TOKEN"), "bearer token (defaults to $GARAGE_TOKEN)")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().IntVar(&globalFlags.retries, "retries", 0, "request attempts before failing (0 keeps the client default)")

	rootCmd.AddCommand(
		identityCommand(),
		pollCommand(),
		voteCommand(),
		revealCommand(),
		cipherKeyCommand(),
	)
	return rootCmd
}

func cipherKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cipher-key",
		Short: "Print the vote cipher secret members pass as --cipher-key (administrators only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := newClient()
			if err != nil {
				return err
			}
			key, err := cli.CipherKey(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch cipher key: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"cipherKey": key})
		},
	}
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		cancel()
		os.Exit(1)
	}
}

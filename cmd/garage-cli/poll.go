package main

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/garagevoting/garage-node/types"
)

func parsePollID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid poll id %q", s)
	}
	return id, nil
}

// parseStart accepts an RFC3339 time, a duration from now or an empty
// string meaning now.
func parseStart(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start %q: want RFC3339 or a duration", s)
	}
	return t, nil
}

func pollCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Manage polls",
	}

	var (
		name     string
		options  []string
		start    string
		duration time.Duration
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a poll (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			startTime, err := parseStart(start, time.Now())
			if err != nil {
				return err
			}
			cli, err := newClient()
			if err != nil {
				return err
			}
			p, err := cli.CreatePoll(cmd.Context(), name, options, startTime, startTime.Add(duration))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
	createCmd.Flags().StringVar(&name, "name", "", "poll name")
	createCmd.Flags().StringSliceVar(&options, "options", nil, "poll options, comma-separated")
	createCmd.Flags().StringVar(&start, "start", "", "start time, RFC3339 or a duration from now (default now)")
	createCmd.Flags().DurationVar(&duration, "duration", 24*time.Hour, "voting window length")
	_ = createCmd.MarkFlagRequired("name")
	_ = createCmd.MarkFlagRequired("options")

	showCmd := &cobra.Command{
		Use:   "show <pollId>",
		Short: "Show a poll",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pollID, err := parsePollID(args[0])
			if err != nil {
				return err
			}
			cli, err := newClient()
			if err != nil {
				return err
			}
			p, err := cli.Poll(cmd.Context(), pollID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}

	addVotersCmd := &cobra.Command{
		Use:   "add-voters <pollId> <commitment>...",
		Short: "Register member commitments in a poll (admin)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pollID, err := parsePollID(args[0])
			if err != nil {
				return err
			}
			commitments := make([]*big.Int, 0, len(args)-1)
			for _, arg := range args[1:] {
				c, err := types.BigIntFromString(arg)
				if err != nil {
					return fmt.Errorf("invalid commitment %q: %w", arg, err)
				}
				commitments = append(commitments, c.MathBigInt())
			}
			cli, err := newClient()
			if err != nil {
				return err
			}
			added, err := cli.AddVoters(cmd.Context(), pollID, commitments)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), added)
		},
	}

	var records bool
	votesCmd := &cobra.Command{
		Use:   "votes <pollId>",
		Short: "List the vote commitments of a poll",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pollID, err := parsePollID(args[0])
			if err != nil {
				return err
			}
			cli, err := newClient()
			if err != nil {
				return err
			}
			if records {
				recs, err := cli.VoteRecords(cmd.Context(), pollID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), recs)
			}
			votes, err := cli.EncryptedVotes(cmd.Context(), pollID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), votes)
		},
	}
	votesCmd.Flags().BoolVar(&records, "records", false, "include nullifier hashes and roots")

	resultsCmd := &cobra.Command{
		Use:   "results <pollId>",
		Short: "Tally the revealed votes of a closed poll (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pollID, err := parsePollID(args[0])
			if err != nil {
				return err
			}
			cli, err := newClient()
			if err != nil {
				return err
			}
			res, err := cli.Results(cmd.Context(), pollID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.AddCommand(createCmd, showCmd, addVotersCmd, votesCmd, resultsCmd)
	return cmd
}

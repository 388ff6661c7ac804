package main

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/garagevoting/garage-node/ballot"
	"github.com/garagevoting/garage-node/group"
	"github.com/garagevoting/garage-node/log"
	"github.com/garagevoting/garage-node/prover"
	"github.com/garagevoting/garage-node/service"
	"github.com/garagevoting/garage-node/types"
)

func voteCommand() *cobra.Command {
	var (
		identityFile string
		cipherKey    string
		artifactsDir string
		artifactsURL string
		out          string
	)
	cmd := &cobra.Command{
		Use:   "vote <pollId> <option>",
		Short: "Encrypt a choice, prove membership anonymously and cast the vote",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pollID, err := parsePollID(args[0])
			if err != nil {
				return err
			}
			option, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid option %q", args[1])
			}
			id, err := loadIdentity(identityFile)
			if err != nil {
				return err
			}
			cipher, err := newVoteCipher(cipherKey)
			if err != nil {
				return err
			}
			cli, err := newClient()
			if err != nil {
				return err
			}

			p, err := cli.Poll(ctx, pollID)
			if err != nil {
				return err
			}
			members, err := cli.Members(ctx, pollID)
			if err != nil {
				return err
			}
			leaves := make([]*big.Int, len(members.Commitments))
			for i, c := range members.Commitments {
				leaves[i] = c.MathBigInt()
			}
			tree, err := group.FromLeaves(pollID, members.Depth, leaves)
			if err != nil {
				return fmt.Errorf("rebuild membership tree: %w", err)
			}
			if tree.Root().Cmp(members.Root.MathBigInt()) != 0 {
				return fmt.Errorf("rebuilt tree root %s does not match the node's %s", tree.Root(), members.Root)
			}

			ciphertext, err := cipher.EncryptVoteFor(option, len(p.Options))
			if err != nil {
				return err
			}
			commitment := ballot.CalculateVoteHash(ciphertext)

			keys, err := service.PrepareArtifacts(ctx, service.ArtifactsConfig{
				Dir:     artifactsDir,
				BaseURL: artifactsURL,
				Depths:  []int{members.Depth},
			})
			if err != nil {
				return fmt.Errorf("load proving key: %w", err)
			}
			log.Infow("generating membership proof", "poll", pollID, "depth", members.Depth)
			proof, err := prover.NewProver(keys).GenerateProof(ctx, id, tree, pollID, commitment)
			if err != nil {
				return err
			}
			nullifierHash := id.NullifierHash(prover.ExternalNullifier(pollID))
			res, err := cli.CastVote(ctx, pollID, commitment, nullifierHash, proof)
			if err != nil {
				return err
			}
			if out != "" {
				if err := os.WriteFile(out, []byte(ciphertext.Hex()+"\n"), 0o600); err != nil {
					return fmt.Errorf("write ciphertext: %w", err)
				}
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"index":          res.Index,
				"voteCommitment": res.VoteCommitment,
				"nullifierHash":  types.NewBigInt(nullifierHash),
				"ciphertext":     ciphertext,
			})
		},
	}
	cmd.Flags().StringVarP(&identityFile, "identity", "i", "identity.json", "identity key file")
	cmd.Flags().StringVar(&cipherKey, "cipher-key", os.Getenv("GARAGE_CIPHER_KEY"), "vote cipher secret shared by the organization (defaults to $GARAGE_CIPHER_KEY)")
	cmd.Flags().StringVar(&artifactsDir, "artifacts-dir", "artifacts", "circuit artifacts cache directory")
	cmd.Flags().StringVar(&artifactsURL, "artifacts-url", "", "http(s) or s3:// location of published circuit artifacts")
	cmd.Flags().StringVar(&out, "out", "", "file where the ciphertext is saved for a later reveal")
	return cmd
}

func revealCommand() *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "reveal <pollId> [ciphertext]",
		Short: "Reveal the ciphertext of a cast vote once the poll is closed",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pollID, err := parsePollID(args[0])
			if err != nil {
				return err
			}
			var raw string
			switch {
			case len(args) == 2:
				raw = args[1]
			case in != "":
				data, err := os.ReadFile(in)
				if err != nil {
					return fmt.Errorf("read ciphertext: %w", err)
				}
				raw = string(data)
			default:
				return fmt.Errorf("a ciphertext argument or --in file is required")
			}
			ciphertext, err := types.HexBytesFromString(strings.TrimSpace(raw))
			if err != nil {
				return fmt.Errorf("invalid ciphertext: %w", err)
			}
			cli, err := newClient()
			if err != nil {
				return err
			}
			commitment, err := cli.RevealVote(cmd.Context(), pollID, ciphertext)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"voteCommitment": commitment})
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "file written by vote --out")
	return cmd
}

// newVoteCipher builds the member side of the vote cipher from the secret
// administrators read with the cipher-key command.
func newVoteCipher(key string) (*ballot.Cipher, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("--cipher-key is required")
	}
	return ballot.NewCipher([]byte(key))
}

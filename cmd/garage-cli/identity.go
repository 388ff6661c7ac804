package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/garagevoting/garage-node/identity"
	"github.com/garagevoting/garage-node/types"
)

// loadIdentity reads a key file written by `identity new`.
func loadIdentity(path string) (*identity.Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}
	id := new(identity.Identity)
	if err := json.Unmarshal(data, id); err != nil {
		return nil, fmt.Errorf("decode identity %s: %w", path, err)
	}
	return id, nil
}

func identityCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Create and inspect member identities",
	}

	var out string
	newCmd := &cobra.Command{
		Use:   "new",
		Short: "Generate a new identity and write its secrets to a key file",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := identity.New()
			if err != nil {
				return err
			}
			data, err := json.Marshal(id)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("write identity: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"file":       out,
				"commitment": types.NewBigInt(id.Commitment()),
			})
		},
	}
	newCmd.Flags().StringVarP(&out, "out", "o", "identity.json", "key file to write")

	var in string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the commitment an administrator registers for an identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := loadIdentity(in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"commitment": types.NewBigInt(id.Commitment()),
			})
		},
	}
	showCmd.Flags().StringVarP(&in, "identity", "i", "identity.json", "key file to read")

	cmd.AddCommand(newCmd, showCmd)
	return cmd
}

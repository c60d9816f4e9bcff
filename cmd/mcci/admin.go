package main

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/cuemby/mcci/pkg/config"
	"github.com/cuemby/mcci/pkg/revision"
	"github.com/cuemby/mcci/pkg/schema"
	"github.com/cuemby/mcci/pkg/types"
	"github.com/spf13/cobra"
)

// Schema commands
var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect schema files",
}

var schemaShowCmd = &cobra.Command{
	Use:   "show FILE",
	Short: "Validate a schema file and list its variables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := schema.Load(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Fingerprint: %s\n\n", reg.Fingerprint())
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ORDINAL\tID\tNAME")
		for ord, v := range reg.Variables() {
			fmt.Fprintf(w, "%d\t%d\t%s\n", ord, v.ID, v.Name)
		}
		return w.Flush()
	},
}

var schemaFingerprintCmd = &cobra.Command{
	Use:   "fingerprint FILE",
	Short: "Print the fingerprint a revision database is bound to",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := schema.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reg.Fingerprint())
		return nil
	},
}

func init() {
	schemaCmd.AddCommand(schemaShowCmd)
	schemaCmd.AddCommand(schemaFingerprintCmd)
}

// Revision commands
var revisionCmd = &cobra.Command{
	Use:   "revision",
	Short: "Inspect or reset a node's revision database",
	Long: `Inspect or reset a node's revision database. The node must be stopped;
the database is locked while it runs.`,
}

var revisionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the latest revision of every variable",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		a, err := revision.Inspect(dataDir)
		if err != nil {
			return err
		}
		defer a.Close()

		revs, err := a.Revisions()
		if err != nil {
			return err
		}
		ids := make([]types.VariableID, 0, len(revs))
		for id := range revs {
			ids = append(ids, id)
		}
		slices.Sort(ids)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Signature: %s\n\n", a.Signature())
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "VARIABLE\tREVISION")
		for _, id := range ids {
			fmt.Fprintf(w, "%d\t%d\n", id, revs[id])
		}
		return w.Flush()
	},
}

var revisionResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop every revision counter and the schema signature",
	Long: `Drop every revision counter and the schema signature. Subscribers that
remember old revisions will see numbers reused, so only reset a database whose
node is being recommissioned.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to reset %s without --yes", dataDir)
		}
		a, err := revision.Inspect(dataDir)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Reset(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Reset %s\n", a.Path())
		return nil
	},
}

func init() {
	revisionCmd.AddCommand(revisionListCmd)
	revisionCmd.AddCommand(revisionResetCmd)

	revisionCmd.PersistentFlags().String("data-dir", config.Default().DataDir, "Directory holding the revision database")
	revisionResetCmd.Flags().Bool("yes", false, "Confirm the reset")
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/got-is-bad-at-git/Kerbalism/internal/server"
)

func (c *cli) newInspectCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Evaluate a scenario once at its epoch and print every vessel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sess, err := newSession(ctx, cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer sess.close(ctx)

			report := sess.sim.Tick(ctx, sess.scenario.Epoch)
			if report.Failed > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d vessel(s) failed to refresh\n", report.Failed)
			}

			snaps := sess.sim.NamedSnapshots()
			if !asJSON {
				return printSnapshots(cmd.OutOrStdout(), snaps)
			}
			vessels := make([]any, 0, len(snaps))
			for _, snap := range snaps {
				vessels = append(vessels, server.SnapshotFields(snap))
			}
			st, err := structpb.NewStruct(map[string]any{"vessels": vessels})
			if err != nil {
				return err
			}
			data, err := protojson.MarshalOptions{Multiline: true}.Marshal(st)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

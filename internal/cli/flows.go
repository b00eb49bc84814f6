package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"trove/api/internal/flow"
	"trove/api/internal/flowclient"
)

func newFlowsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flows",
		Short: "List, show, create and delete flows",
	}
	cmd.AddCommand(
		newFlowsListCmd(e),
		newFlowsShowCmd(e),
		newFlowsCreateCmd(e),
		newFlowsUpdateCmd(e),
		newFlowsDeleteCmd(e),
	)
	return cmd
}

func newFlowsListCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your flows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := e.output()
			if err != nil {
				return err
			}
			client, err := e.client(cmd.Context())
			if err != nil {
				return err
			}
			flows, err := client.ListFlows(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, len(flows))
			for i, f := range flows {
				rows[i] = []string{f.ID, f.Name, string(f.Visibility), strconv.Itoa(f.StageCount), strconv.Itoa(f.NodeCount)}
			}
			return out.Print([]string{"ID", "NAME", "VISIBILITY", "STAGES", "NODES"}, rows, flows)
		},
	}
}

func newFlowsShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show FLOW_ID",
		Short: "Show a flow with its stages and nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := e.output()
			if err != nil {
				return err
			}
			client, err := e.client(cmd.Context())
			if err != nil {
				return err
			}
			f, err := client.GetFlow(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return out.Print([]string{"STAGE", "#", "NODE", "CONTENT", "TITLE"}, flowRows(f), f)
		},
	}
}

// flowRows flattens a flow into one row per node; empty stages get a row of
// their own.
func flowRows(f flow.Flow) [][]string {
	var rows [][]string
	for _, stage := range f.Stages {
		label := stage.Name + " (" + stage.ID + ")"
		if len(stage.Nodes) == 0 {
			rows = append(rows, []string{label, "-", "-", "-", "-"})
			continue
		}
		for _, node := range stage.Nodes {
			rows = append(rows, []string{label, strconv.Itoa(node.Position), node.ID, node.ContentID, node.Content.Title})
		}
	}
	return rows
}

func newFlowsCreateCmd(e *env) *cobra.Command {
	var req flowclient.CreateFlowRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a flow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := e.output()
			if err != nil {
				return err
			}
			client, err := e.client(cmd.Context())
			if err != nil {
				return err
			}
			f, err := client.CreateFlow(cmd.Context(), req)
			if err != nil {
				return err
			}
			out.Success("Flow created: " + f.ID)
			return out.Print([]string{"STAGE", "#", "NODE", "CONTENT", "TITLE"}, flowRows(f), f)
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "Flow name (required)")
	cmd.Flags().StringVar(&req.Visibility, "visibility", "private", "private or public")
	cmd.Flags().StringVar(&req.CoverImage, "cover", "", "Cover image URL")
	cmd.Flags().StringArrayVar(&req.Stages, "stage", nil, "Initial stage name, repeatable")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newFlowsUpdateCmd(e *env) *cobra.Command {
	var name, visibility, cover string
	cmd := &cobra.Command{
		Use:   "update FLOW_ID",
		Short: "Rename a flow or change its visibility",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := e.output()
			if err != nil {
				return err
			}
			client, err := e.client(cmd.Context())
			if err != nil {
				return err
			}
			var req flowclient.UpdateFlowRequest
			if cmd.Flags().Changed("name") {
				req.Name = &name
			}
			if cmd.Flags().Changed("visibility") {
				req.Visibility = &visibility
			}
			if cmd.Flags().Changed("cover") {
				req.CoverImage = &cover
			}
			f, err := client.UpdateFlow(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			out.Success("Flow updated")
			return out.Print([]string{"ID", "NAME", "VISIBILITY"}, [][]string{{f.ID, f.Name, string(f.Visibility)}}, f)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&visibility, "visibility", "", "private or public")
	cmd.Flags().StringVar(&cover, "cover", "", "Cover image URL")
	return cmd
}

func newFlowsDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete FLOW_ID",
		Short: "Delete a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := e.output()
			if err != nil {
				return err
			}
			client, err := e.client(cmd.Context())
			if err != nil {
				return err
			}
			if err := client.DeleteFlow(cmd.Context(), args[0]); err != nil {
				return err
			}
			out.Success("Flow deleted: " + args[0])
			return nil
		},
	}
}

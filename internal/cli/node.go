package cli

import (
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"trove/api/internal/editor"
	"trove/api/internal/flow"
)

func newNodeCmd(e *env) *cobra.Command {
	var flowID string
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Insert, move, describe and remove nodes",
	}
	cmd.PersistentFlags().StringVar(&flowID, "flow", "", "Flow id (required)")
	_ = cmd.MarkPersistentFlagRequired("flow")

	var stageID, before string
	insert := &cobra.Command{
		Use:   "insert CONTENT_ID --stage STAGE_ID [--before NODE_ID]",
		Short: "Drag a library item into a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withEditor(cmd, flowID, func(ed *editor.Editor, out *Output) error {
				src := editor.Source{Kind: editor.SourceExternal, ID: args[0]}
				res, err := drag(cmd.Context(), ed, src, dropZone(stageID, before))
				if err != nil {
					return err
				}
				if res.Node == nil {
					return errors.New("insert returned no node")
				}
				out.Success("Node created: " + res.Node.ID)
				return out.Print(nodeHeaders, [][]string{nodeRow(*res.Node)}, res.Node)
			})
		},
	}
	insert.Flags().StringVar(&stageID, "stage", "", "Target stage (required)")
	insert.Flags().StringVar(&before, "before", "", "Insert before this node; default is the end")
	_ = insert.MarkFlagRequired("stage")

	var toStage, moveBefore string
	move := &cobra.Command{
		Use:   "move NODE_ID --to-stage STAGE_ID [--before NODE_ID]",
		Short: "Drag a node within its stage or into another one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withEditor(cmd, flowID, func(ed *editor.Editor, out *Output) error {
				src := editor.Source{Kind: editor.SourceNode, ID: args[0]}
				if _, err := drag(cmd.Context(), ed, src, dropZone(toStage, moveBefore)); err != nil {
					return err
				}
				f := ed.Flow()
				return out.Print([]string{"STAGE", "#", "NODE", "CONTENT", "TITLE"}, flowRows(f), f)
			})
		},
	}
	move.Flags().StringVar(&toStage, "to-stage", "", "Target stage (required)")
	move.Flags().StringVar(&moveBefore, "before", "", "Drop before this node; default is the end")
	_ = move.MarkFlagRequired("to-stage")

	describe := &cobra.Command{
		Use:   "describe NODE_ID TEXT",
		Short: "Set a node's description",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withEditor(cmd, flowID, func(ed *editor.Editor, out *Output) error {
				if err := ed.UpdateNode(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				out.Success("Node updated")
				return nil
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove NODE_ID",
		Short: "Remove a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withEditor(cmd, flowID, func(ed *editor.Editor, out *Output) error {
				if err := ed.RemoveNode(cmd.Context(), args[0]); err != nil {
					return err
				}
				out.Success("Node removed: " + args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(insert, move, describe, remove)
	return cmd
}

var nodeHeaders = []string{"ID", "#", "CONTENT", "TITLE", "DESCRIPTION"}

func nodeRow(n flow.Node) []string {
	return []string{n.ID, strconv.Itoa(n.Position), n.ContentID, n.Content.Title, n.Description}
}

// dropZone is the zone a pointer would be over: the node slot when before
// is set, else the stage's trailing zone.
func dropZone(stageID, before string) editor.Target {
	if before != "" {
		return editor.Target{Kind: editor.ZoneNode, ID: before, StageID: stageID}
	}
	return editor.Target{Kind: editor.ZoneStageEnd, ID: stageID, StageID: stageID}
}

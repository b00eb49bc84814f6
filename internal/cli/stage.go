package cli

import (
	"github.com/spf13/cobra"

	"trove/api/internal/editor"
)

func newStageCmd(e *env) *cobra.Command {
	var flowID string
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Add, rename, move and delete stages",
	}
	cmd.PersistentFlags().StringVar(&flowID, "flow", "", "Flow id (required)")
	_ = cmd.MarkPersistentFlagRequired("flow")

	add := &cobra.Command{
		Use:   "add NAME",
		Short: "Append a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withEditor(cmd, flowID, func(ed *editor.Editor, out *Output) error {
				stage, err := ed.AddStage(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out.Success("Stage added: " + stage.ID)
				return out.Print([]string{"ID", "NAME"}, [][]string{{stage.ID, stage.Name}}, stage)
			})
		},
	}

	rename := &cobra.Command{
		Use:   "rename STAGE_ID NAME",
		Short: "Rename a stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withEditor(cmd, flowID, func(ed *editor.Editor, out *Output) error {
				if err := ed.RenameStage(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				out.Success("Stage renamed")
				return nil
			})
		},
	}

	var before string
	move := &cobra.Command{
		Use:   "move STAGE_ID --before TARGET_STAGE_ID",
		Short: "Drag a stage onto another stage's slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withEditor(cmd, flowID, func(ed *editor.Editor, out *Output) error {
				src := editor.Source{Kind: editor.SourceStage, ID: args[0]}
				target := editor.Target{Kind: editor.ZoneStage, ID: before}
				if _, err := drag(cmd.Context(), ed, src, target); err != nil {
					return err
				}
				f := ed.Flow()
				return out.Print([]string{"STAGE", "#", "NODE", "CONTENT", "TITLE"}, flowRows(f), f)
			})
		},
	}
	move.Flags().StringVar(&before, "before", "", "Stage whose slot to take (required)")
	_ = move.MarkFlagRequired("before")

	del := &cobra.Command{
		Use:   "delete STAGE_ID",
		Short: "Delete a stage and its nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.withEditor(cmd, flowID, func(ed *editor.Editor, out *Output) error {
				if err := ed.DeleteStage(cmd.Context(), args[0]); err != nil {
					return err
				}
				out.Success("Stage deleted: " + args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(add, rename, move, del)
	return cmd
}

// withEditor opens flowID in an editor and runs fn against it.
func (e *env) withEditor(cmd *cobra.Command, flowID string, fn func(*editor.Editor, *Output) error) error {
	out, err := e.output()
	if err != nil {
		return err
	}
	client, err := e.client(cmd.Context())
	if err != nil {
		return err
	}
	ed, err := e.openEditor(cmd.Context(), client, flowID)
	if err != nil {
		return err
	}
	return fn(ed, out)
}

package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"trove/api/internal/counts"
	"trove/api/internal/editor"
	"trove/api/internal/flow"
	"trove/api/internal/flowclient"
)

func newLibraryCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Browse and add library content",
	}

	var flowID, query string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List library items; with --flow only those still available to it",
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
			items, err := e.libraryItems(cmd.Context(), client, flowID, query, limit)
			if err != nil {
				return err
			}
			rows := make([][]string, len(items))
			for i, item := range items {
				rows[i] = []string{item.ContentID, string(item.Kind), item.Title, item.Creator, strconv.Itoa(item.UsageCount)}
			}
			return out.Print([]string{"CONTENT", "KIND", "TITLE", "CREATOR", "USED IN"}, rows, items)
		},
	}
	list.Flags().StringVar(&flowID, "flow", "", "Only items not yet in this flow")
	list.Flags().StringVarP(&query, "query", "q", "", "Search text")
	list.Flags().IntVar(&limit, "limit", 0, "Maximum items")

	var req flowclient.ContentRequest
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a content item to your library",
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
			c, err := client.AddContent(cmd.Context(), req)
			if err != nil {
				return err
			}
			out.Success("Content added: " + c.ID)
			return out.Print([]string{"ID", "KIND", "TITLE"}, [][]string{{c.ID, string(c.Kind), c.Title}}, c)
		},
	}
	add.Flags().StringVar(&req.Kind, "kind", "", "book, video, game or music (required)")
	add.Flags().StringVar(&req.Title, "title", "", "Title (required)")
	add.Flags().StringVar(&req.Creator, "creator", "", "Author, director, studio or artist")
	add.Flags().IntVar(&req.Year, "year", 0, "Release year")
	add.Flags().StringVar(&req.CoverURL, "cover", "", "Cover image URL")
	_ = add.MarkFlagRequired("kind")
	_ = add.MarkFlagRequired("title")

	cmd.AddCommand(list, add)
	return cmd
}

// libraryItems asks the editor for a flow's drop sources, annotated with
// usage counts fetched in batches. Without a flow it lists the library as is.
func (e *env) libraryItems(ctx context.Context, client *flowclient.Client, flowID, query string, limit int) ([]flow.ExternalItem, error) {
	if flowID == "" {
		return client.ListLibrary(ctx, query, "", limit)
	}
	batcher := counts.New(client.UsageCounts)
	defer batcher.Close()
	ed, err := e.openEditor(ctx, client, flowID, editor.WithUsageCounter(batcher))
	if err != nil {
		return nil, err
	}
	items, err := ed.AvailableItems(ctx, query)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/taralshah99/email-dossier-cli/internal/model"
	"github.com/taralshah99/email-dossier-cli/internal/store"
)

var dossiersCmd = &cobra.Command{
	Use:   "dossiers",
	Short: "Inspect stored dossiers",
	Long:  "Commands for listing and viewing previously generated dossiers.",
}

var dossiersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored dossiers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		kind, _ := cmd.Flags().GetString("kind")
		client, _ := cmd.Flags().GetString("client")
		limit, _ := cmd.Flags().GetInt("limit")

		dossiers, err := st.ListDossiers(ctx, store.DossierFilter{
			Kind:       model.DossierKind(kind),
			ClientName: client,
			Limit:      limit,
		})
		if err != nil {
			return eris.Wrap(err, "dossiers list")
		}

		if len(dossiers) == 0 {
			fmt.Fprintln(os.Stderr, "No dossiers found.")
			return nil
		}

		formatDossiersList(os.Stdout, dossiers)
		return nil
	},
}

var dossiersShowCmd = &cobra.Command{
	Use:   "show <dossier-id>",
	Short: "Show a stored dossier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		d, err := st.GetDossier(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "dossiers show")
		}
		if d == nil {
			return eris.Errorf("dossier not found: %s", args[0])
		}

		if raw, _ := cmd.Flags().GetBool("json"); raw {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		}

		fmt.Fprintln(os.Stdout, d.Content)
		return nil
	},
}

func formatDossiersList(w io.Writer, dossiers []model.Dossier) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tCLIENT\tPRODUCT\tGENERATED")
	for _, d := range dossiers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.Kind, d.ClientName, d.ProductName,
			d.GeneratedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = tw.Flush()
}

func init() {
	dossiersListCmd.Flags().String("kind", "", "filter by dossier kind (summary|meeting|client)")
	dossiersListCmd.Flags().String("client", "", "filter by client name")
	dossiersListCmd.Flags().Int("limit", 50, "maximum dossiers to list")
	dossiersShowCmd.Flags().Bool("json", false, "print the full record as JSON")

	dossiersCmd.AddCommand(dossiersListCmd, dossiersShowCmd)
	rootCmd.AddCommand(dossiersCmd)
}

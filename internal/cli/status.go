package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"docqa/internal/service"
)

var (
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Width(18)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the recorded store and its document counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := a.openIndex(cmd.Context())
			if err != nil {
				return err
			}
			rt := service.NewRuntime(a.cfg, index, nil, a.log)
			store, err := rt.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("store status: %w", err)
			}

			out := cmd.OutOrStdout()
			rows := [][2]string{
				{"Store", store.Name},
				{"Display name", store.DisplayName},
				{"Active", fmt.Sprint(store.ActiveDocuments)},
				{"Pending", fmt.Sprint(store.PendingDocuments)},
				{"Failed", fmt.Sprint(store.FailedDocuments)},
				{"Size (bytes)", fmt.Sprint(store.SizeBytes)},
			}
			for _, r := range rows {
				if isTerminal(out) {
					fmt.Fprintln(out, labelStyle.Render(r[0])+valueStyle.Render(r[1]))
				} else {
					fmt.Fprintf(out, "%-14s %s\n", r[0]+":", r[1])
				}
			}
			return nil
		},
	}
}

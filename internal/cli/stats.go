package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/coffersTech/logvault/internal/engine"
	"github.com/coffersTech/logvault/internal/model"
	"github.com/spf13/cobra"
)

var (
	styleTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	styleLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleCount = lipgloss.NewStyle().Bold(true)
	styleBox   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	levelStyles = map[model.Level]lipgloss.Style{
		model.LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		model.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		model.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		model.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		model.LevelTrace: lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Faint(true),
	}
)

func newStatsCommand(root *rootOptions) *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print a summary of the record file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := root.openStore()
			if err != nil {
				return err
			}
			stats, err := store.Stats()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStats(stats, top))
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of services to list")
	return cmd
}

// renderStats lays out totals, levels, services and recent activity in boxes.
func renderStats(s engine.Stats, top int) string {
	var levels strings.Builder
	levels.WriteString(styleTitle.Render("By level") + "\n")
	for _, l := range model.Levels {
		fmt.Fprintf(&levels, "%s %s\n", levelStyles[l].Render(fmt.Sprintf("%-5s", l)), styleCount.Render(fmt.Sprint(s.ByLevel[string(l)])))
	}

	var services strings.Builder
	services.WriteString(styleTitle.Render("By service") + "\n")
	names := make([]string, 0, len(s.ByService))
	for name := range s.ByService {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if s.ByService[names[i]] != s.ByService[names[j]] {
			return s.ByService[names[i]] > s.ByService[names[j]]
		}
		return names[i] < names[j]
	})
	if top > 0 && len(names) > top {
		names = names[:top]
	}
	if len(names) == 0 {
		services.WriteString(styleLabel.Render("(none)") + "\n")
	}
	for _, name := range names {
		fmt.Fprintf(&services, "%s %s\n", styleLabel.Render(name), styleCount.Render(fmt.Sprint(s.ByService[name])))
	}

	recent := styleTitle.Render("Recent activity") + "\n" +
		fmt.Sprintf("%s %s\n", styleLabel.Render("24h"), styleCount.Render(fmt.Sprint(s.RecentActivity.Last24h))) +
		fmt.Sprintf("%s %s\n", styleLabel.Render(" 7d"), styleCount.Render(fmt.Sprint(s.RecentActivity.Last7d))) +
		fmt.Sprintf("%s %s", styleLabel.Render("30d"), styleCount.Render(fmt.Sprint(s.RecentActivity.Last30d)))

	header := styleTitle.Render("Total records ") + styleCount.Render(fmt.Sprint(s.Total))
	body := lipgloss.JoinHorizontal(lipgloss.Top,
		styleBox.Render(strings.TrimRight(levels.String(), "\n")),
		styleBox.Render(strings.TrimRight(services.String(), "\n")),
		styleBox.Render(recent),
	)
	return lipgloss.JoinVertical(lipgloss.Left, header, body)
}

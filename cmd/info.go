package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/lockplane/ksmigrate/internal/engine"
)

var infoOutputFormat string

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().StringVar(&infoOutputFormat, "output-format", "text", "Output format: text (default) or json")
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the state of every migration",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	if infoOutputFormat != "text" && infoOutputFormat != "json" {
		return fmt.Errorf("unknown output format %q", infoOutputFormat)
	}

	ctx, cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	candidates, err := discover(ctx, cfg, logger)
	if err != nil {
		return err
	}

	eng, closeSession, err := openEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSession()

	entries, err := eng.Info(ctx, candidates)
	if err != nil {
		return err
	}

	if infoOutputFormat == "json" {
		return writeInfoJSON(cmd.OutOrStdout(), entries)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderInfoTable(entries))
	return nil
}

type infoJSON struct {
	Version         string `json:"version"`
	Description     string `json:"description"`
	Type            string `json:"type"`
	Checksum        int64  `json:"checksum"`
	State           string `json:"state"`
	Rank            int    `json:"rank,omitempty"`
	InstalledBy     string `json:"installed_by,omitempty"`
	InstalledOn     string `json:"installed_on,omitempty"`
	ExecutionTimeMS int64  `json:"execution_time_ms,omitempty"`
}

func writeInfoJSON(w io.Writer, entries []engine.InfoEntry) error {
	out := make([]infoJSON, len(entries))
	for i, e := range entries {
		out[i] = infoJSON{
			Version:         e.Version.String(),
			Description:     e.Description,
			Type:            string(e.Type),
			Checksum:        e.Checksum,
			State:           string(e.State),
			Rank:            e.Rank,
			InstalledBy:     e.InstalledBy,
			ExecutionTimeMS: e.ExecutionTime.Milliseconds(),
		}
		if !e.InstalledOn.IsZero() {
			out[i].InstalledOn = e.InstalledOn.Format("2006-01-02T15:04:05Z07:00")
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	stateColors      = map[engine.State]lipgloss.Color{
		engine.StateSuccess:    lipgloss.Color("42"),
		engine.StateFailed:     lipgloss.Color("196"),
		engine.StatePending:    lipgloss.Color("75"),
		engine.StateOutOfOrder: lipgloss.Color("214"),
		engine.StateIgnored:    lipgloss.Color("214"),
		engine.StateMissing:    lipgloss.Color("196"),
		engine.StateAbove:      lipgloss.Color("240"),
		engine.StateRepaired:   lipgloss.Color("240"),
	}
)

const stateColumn = 4

func renderInfoTable(entries []engine.InfoEntry) string {
	if len(entries) == 0 {
		return "No migrations found."
	}

	rows := make([][]string, len(entries))
	states := make([]engine.State, len(entries))
	for i, e := range entries {
		installed := ""
		if !e.InstalledOn.IsZero() {
			installed = e.InstalledOn.Local().Format("2006-01-02 15:04:05")
		}
		rows[i] = []string{e.Version.String(), e.Description, string(e.Type), installed, string(e.State)}
		states[i] = e.State
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("Version", "Description", "Type", "Installed on", "State").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if col == stateColumn && row >= 0 && row < len(states) {
				return tableCellStyle.Foreground(stateColors[states[row]])
			}
			return tableCellStyle
		})
	return t.String()
}

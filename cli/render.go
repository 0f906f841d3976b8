package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"aquasense/prediction"
	"aquasense/records"
)

var (
	styleExcellent = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true) // green
	styleGood      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))            // cyan
	stylePoor      = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))           // yellow
	styleHazardous = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("196")).
			Bold(true) // white on red
	styleOther    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleHeader   = lipgloss.NewStyle().Bold(true).Underline(true)
	styleAdvisory = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true)
)

func styleLabel(label string) string {
	switch label {
	case "Excellent":
		return styleExcellent.Render(label)
	case "Good":
		return styleGood.Render(label)
	case "Poor":
		return stylePoor.Render(label)
	case "Hazardous":
		return styleHazardous.Render(label)
	default:
		return styleOther.Render(label)
	}
}

func renderHistory(w io.Writer, history []records.Observation) error {
	if len(history) == 0 {
		_, err := fmt.Fprintln(w, "No records yet.")
		return err
	}
	header := fmt.Sprintf("%4s  %6s  %8s  %9s  %11s  %s", "#", "pH", "TDS", "Turbidity", "Temperature", "Prediction")
	if _, err := fmt.Fprintln(w, styleHeader.Render(header)); err != nil {
		return err
	}
	for i, obs := range history {
		_, err := fmt.Fprintf(w, "%4d  %6.2f  %8.1f  %9.2f  %11.1f  %s\n",
			i+1, obs.PH, obs.TDS, obs.Turbidity, obs.Temperature, styleLabel(obs.Prediction))
		if err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d record(s)\n", len(history))
	return err
}

func renderGuidance(w io.Writer) error {
	for _, r := range prediction.Guidance() {
		name := r.Reading
		if r.Unit != "" {
			name += " (" + r.Unit + ")"
		}
		if _, err := fmt.Fprintf(w, "%-18s %s\n", styleHeader.Render(name), r.Note); err != nil {
			return err
		}
	}
	return nil
}

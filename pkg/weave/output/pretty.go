package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// PrettyFormatter formats output with colors and styling using lipgloss.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")
	w.WriteString(f.formatTable(r))
	w.WriteString(f.formatFooter(r))
	w.WriteString("\n")

	if r.ManifestURL != "" {
		fmt.Fprintf(w, "%s %s\n", LabelStyle.Render("Manifest:"), TitleStyle.Render(r.ManifestURL))
	}
	if len(r.Warnings) > 0 {
		w.WriteString(f.formatWarnings(r.Warnings))
	}
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Result) string {
	lines := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Source:"), ValueStyle.Render(r.Source)),
		fmt.Sprintf("%s %s  %s %s",
			LabelStyle.Render("Gateway:"), ValueStyle.Render(r.Gateway),
			LabelStyle.Render("Wallet:"), ValueStyle.Render(r.Address)),
	}
	if r.AlreadyDeployed {
		lines = append(lines, SuccessStyle.Render("Already deployed, nothing to upload"))
	}
	if r.FreeBundler {
		lines = append(lines, SuccessStyle.Render("Every file qualifies for free bundling"))
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatTable(r *Result) string {
	if len(r.Items) == 0 {
		return MutedStyle.Render("  Nothing to deploy\n")
	}

	sizes := make([]string, len(r.Items))
	sizeWidth, idWidth := len("SIZE"), len("ID")
	for i, it := range r.Items {
		sizes[i] = humanize.IBytes(uint64(it.Size))
		sizeWidth = max(sizeWidth, len(sizes[i]))
		idWidth = max(idWidth, len(it.ID))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "  %s  %s  %s  %s  %s  %s\n",
		TableHeaderStyle.Render(padRight("ID", idWidth)),
		TableHeaderStyle.Render(padLeft("SIZE", sizeWidth)),
		TableHeaderStyle.Render(padLeft("FEE", 16)),
		TableHeaderStyle.Render(padRight("TYPE", 8)),
		TableHeaderStyle.Render(padRight("STATE", 8)),
		TableHeaderStyle.Render("PATH"))

	for i, it := range r.Items {
		path := it.Path
		if it.Error != "" {
			path += " " + ErrorStyle.Render("("+it.Error+")")
		}
		fmt.Fprintf(&sb, "  %s  %s  %s  %s  %s  %s\n",
			IDStyle.Render(padRight(it.ID, idWidth)),
			SizeStyle.Render(padLeft(sizes[i], sizeWidth)),
			ValueStyle.Render(padLeft(AR(it.Reward), 16)),
			MutedStyle.Render(padRight(it.Type, 8)),
			StateStyle(it.State).Render(padRight(it.State, 8)),
			path)
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Result) string {
	parts := []string{
		fmt.Sprintf("%s %s", LabelStyle.Render("Items:"), ValueStyle.Render(fmt.Sprintf("%d", len(r.Items)))),
		fmt.Sprintf("%s %s", LabelStyle.Render("Size:"), SizeStyle.Render(humanize.IBytes(uint64(r.TotalSize())))),
		fmt.Sprintf("%s %s", LabelStyle.Render("Fee:"), ValueStyle.Render(AR(r.Reward))),
	}
	if r.ServiceFee != "" {
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Service fee:"), ValueStyle.Render(AR(r.ServiceFee))))
	}
	if r.BalanceAfter != "" {
		parts = append(parts, fmt.Sprintf("%s %s", LabelStyle.Render("Balance after:"), ValueStyle.Render(AR(r.BalanceAfter))))
	}
	if n := r.Count(StateFailed); n > 0 {
		parts = append(parts, ErrorStyle.Render(fmt.Sprintf("%d failed", n)))
	}
	if r.Duration > 0 {
		parts = append(parts, MutedStyle.Render(formatDuration(r.Duration)))
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

func (f *PrettyFormatter) formatWarnings(warnings []string) string {
	var sb strings.Builder
	sb.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
	sb.WriteString("\n")
	for _, warning := range warnings {
		sb.WriteString(WarningStyle.Render("  " + warning))
		sb.WriteString("\n")
	}
	return sb.String()
}

// padLeft pads a string with spaces on the left to achieve the desired width.
func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)

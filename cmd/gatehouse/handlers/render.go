package handlers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gatehouse-dev/gatehouse/internal/orchestrate"
	"github.com/gatehouse-dev/gatehouse/internal/reconcile"
	"github.com/gatehouse-dev/gatehouse/internal/state"
	"github.com/gatehouse-dev/gatehouse/internal/topology"
)

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorBlue   = lipgloss.Color("#3b82f6")
	colorYellow = lipgloss.Color("#eab308")
	colorDim    = lipgloss.Color("#6b7280")
	colorWhite  = lipgloss.Color("#f9fafb")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	greenStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	redStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	yellowStyle = lipgloss.NewStyle().
			Foreground(colorYellow)
)

func verbStyle(verb reconcile.Verb) lipgloss.Style {
	switch verb {
	case reconcile.VerbCreate:
		return greenStyle
	case reconcile.VerbDestroy:
		return redStyle
	default:
		return yellowStyle
	}
}

// renderPlan produces a styled rank-by-rank plan listing.
func renderPlan(clusterName string, plan *reconcile.Plan, reversed bool) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(titleStyle.Render(fmt.Sprintf("  gatehouse plan: %s", clusterName)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  " + strings.Repeat("═", 30)))
	b.WriteString("\n")

	if plan.Empty() {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  No changes. The cluster matches the desired topology."))
		b.WriteString("\n")
		return b.String()
	}

	for _, actions := range plan.Ranks(reversed) {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("  " + actions[0].Rank.String()))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  " + strings.Repeat("─", 35)))
		b.WriteString("\n")
		for _, action := range actions {
			b.WriteString(fmt.Sprintf("    %s  %s\n",
				verbStyle(action.Verb).Render(fmt.Sprintf("%-8s", string(action.Verb))),
				action.NodeID))
		}
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  " + summarizeCounts(plan.Counts())))
	b.WriteString("\n")
	return b.String()
}

func summarizeCounts(counts map[string]int) string {
	verbs := make([]string, 0, len(counts))
	for verb := range counts {
		verbs = append(verbs, verb)
	}
	sort.Strings(verbs)

	parts := make([]string, 0, len(verbs))
	for _, verb := range verbs {
		parts = append(parts, fmt.Sprintf("%d to %s", counts[verb], verb))
	}
	return strings.Join(parts, ", ")
}

// renderReport summarizes an operation outcome per action.
func renderReport(operation, clusterName string, report *orchestrate.Report) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(titleStyle.Render(fmt.Sprintf("  gatehouse %s: %s", operation, clusterName)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  " + strings.Repeat("═", 30)))
	b.WriteString("\n")

	if len(report.Succeeded) == 0 && len(report.Failed) == 0 && len(report.Skipped) == 0 {
		b.WriteString(dimStyle.Render("  Nothing to do."))
		b.WriteString("\n")
		return b.String()
	}

	renderReportSection(&b, "Succeeded", greenStyle, report.Succeeded)
	renderReportSection(&b, "Failed", redStyle, report.Failed)
	renderReportSection(&b, "Skipped", dimStyle, report.Skipped)

	for _, warning := range report.Warnings {
		b.WriteString(yellowStyle.Render(fmt.Sprintf("  warning: %v", warning)))
		b.WriteString("\n")
	}
	return b.String()
}

func renderReportSection(b *strings.Builder, name string, style lipgloss.Style, actions []string) {
	if len(actions) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString(sectionStyle.Render(fmt.Sprintf("  %s (%d)", name, len(actions))))
	b.WriteString("\n")
	for _, action := range actions {
		b.WriteString("    ")
		b.WriteString(style.Render(action))
		b.WriteString("\n")
	}
}

// renderStatus lists the recorded resources grouped by kind.
func renderStatus(st *state.ClusterState, clusterName, metricsRoute string) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(titleStyle.Render(fmt.Sprintf("  gatehouse status: %s", clusterName)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  " + strings.Repeat("═", 30)))
	b.WriteString("\n")

	if st.Empty() {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  No resources recorded. Run 'gatehouse apply' to provision the cluster."))
		b.WriteString("\n")
		return b.String()
	}

	names := make([]string, 0, len(st.Resources))
	for name := range st.Resources {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, kind := range []state.ResourceKind{state.KindNetwork, state.KindFirewall, state.KindServer} {
		first := true
		for _, name := range names {
			res := st.Resources[name]
			if res.Kind != kind {
				continue
			}
			if first {
				b.WriteString("\n")
				b.WriteString(sectionStyle.Render("  " + string(kind)))
				b.WriteString("\n")
				b.WriteString(dimStyle.Render("  " + strings.Repeat("─", 35)))
				b.WriteString("\n")
				first = false
			}
			b.WriteString(fmt.Sprintf("    %-28s %s%s\n", name, dimStyle.Render("id="+res.ID), renderMemberStatus(res)))
		}
	}

	if metricsRoute != "" {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("  Access"))
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  " + strings.Repeat("─", 35)))
		b.WriteString("\n")
		b.WriteString("    " + metricsRoute + "\n")
	}

	b.WriteString("\n")
	return b.String()
}

func renderMemberStatus(res state.Resource) string {
	if res.Group != topology.RoleWorker || res.Status == "" {
		return ""
	}
	style := dimStyle
	switch res.Status {
	case state.StatusHealthy:
		style = greenStyle
	case state.StatusDraining:
		style = yellowStyle
	}
	return "  " + style.Render(res.Status)
}

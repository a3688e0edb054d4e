package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"valet/internal/tools"
)

var (
	domainStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Width(18)
	gatedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// toolsCmd lists the capability catalog
var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the capability catalog and its confirmation rules",
	Run: func(cmd *cobra.Command, args []string) {
		printCatalog()
	},
}

func printCatalog() {
	var lastDomain tools.Domain
	for _, cap := range tools.Catalog() {
		if cap.Domain != lastDomain {
			fmt.Println(domainStyle.Render(strings.ToUpper(string(cap.Domain))))
			lastDomain = cap.Domain
		}

		line := "  " + nameStyle.Render(cap.Name) + cap.Description
		if cap.SideEffect == tools.Mutating {
			line += gatedStyle.Render("  [asks first]")
		}
		if cap.Paged {
			line += subtleStyle.Render("  (paged)")
		}
		fmt.Println(line)

		if len(cap.Required) > 0 {
			parts := make([]string, len(cap.Required))
			for i, f := range cap.Required {
				parts[i] = string(f)
			}
			fmt.Println(subtleStyle.Render("      requires: " + strings.Join(parts, ", ")))
		}
	}
}

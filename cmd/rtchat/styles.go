package main

import (
	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	prompt    lipgloss.Style
	assistant lipgloss.Style
	tool      lipgloss.Style
	err       lipgloss.Style
	dim       lipgloss.Style
}

func newStyles() styles {
	return styles{
		prompt:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")),
		assistant: lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
		tool:      lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("214")),
		err:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		dim:       lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

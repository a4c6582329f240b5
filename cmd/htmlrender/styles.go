package main

import "github.com/charmbracelet/lipgloss"

// Color palette for command output
var (
	salmonPink  = lipgloss.Color("#FFB3BA") // headers and failures
	mintGreen   = lipgloss.Color("#A8E6CF") // success
	mutedGray   = lipgloss.Color("#6B7280") // secondary text
	brightWhite = lipgloss.Color("#F9FAFB")
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(mintGreen)

	errorStyle = lipgloss.NewStyle().
			Foreground(salmonPink)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	cellStyle = lipgloss.NewStyle().
			Foreground(brightWhite).
			Padding(0, 1)

	headerCellStyle = cellStyle.
			Foreground(salmonPink).
			Bold(true)
)

package ui

import (
	"math"

	"github.com/charmbracelet/lipgloss"
)

// Columns is the grid width for n tiles: ceil(sqrt(n)), at least 1.
func Columns(n int) int {
	if n <= 0 {
		return 1
	}
	return int(math.Ceil(math.Sqrt(float64(n))))
}

// renderGrid lays rendered tiles out row by row.
func renderGrid(tiles []string, cols int) string {
	if len(tiles) == 0 {
		return ""
	}
	var rows []string
	for start := 0; start < len(tiles); start += cols {
		end := min(start+cols, len(tiles))
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, tiles[start:end]...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// tileWidth splits the terminal width between cols tiles, leaving room for
// borders and padding.
func tileWidth(total, cols int) int {
	const frame = 4
	if total <= 0 {
		return 24
	}
	w := total/cols - frame
	return max(w, 12)
}

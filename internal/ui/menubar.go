package ui

import (
	"fmt"

	"ble-midi.klederson.com/internal/config"
)

// RenderMenuBar renders the top menu bar.
func RenderMenuBar(width int, source string, plotRaw bool) string {
	title := fmt.Sprintf(" %s v%s ", config.AppName, config.AppVersion)

	keys := []struct{ key, label string }{
		{"R", "eset"},
		{"0-7", "zone"},
		{"V", "reverse"},
		{"I", "dentity"},
		{"P", "lot"},
		{"L", "oad"},
		{"Q", "uit"},
	}

	menu := ""
	for _, k := range keys {
		menu += "  " + StyleMenuKey.Render("["+k.key+"]") + StyleMenuLabel.Render(k.label)
	}

	mode := "LEVEL"
	if plotRaw {
		mode = "RAW"
	}
	right := StyleMenuKey.Render(mode) + "  " + StyleMenuLabel.Render("Source: "+source) + " "

	return StyleMenuBar.Width(width).Render(pad(StyleMenuKey.Render(title)+menu, right, width))
}

package display

import (
	"os"

	"github.com/mattn/go-isatty"
)

// Icon represents a visual icon with an ASCII fallback
type Icon struct {
	Unicode string
	ASCII   string
	Color   Color
}

// IconSystem renders named icons, falling back to ASCII when the terminal
// cannot show Unicode
type IconSystem interface {
	RenderIcon(name string) string
	RenderIconWithColor(name string, colors ColorSystem) string
	IsUnicodeSupported() bool
}

type iconSystem struct {
	unicodeSupported bool
	icons            map[string]Icon
}

var defaultIcons = map[string]Icon{
	"success":   {Unicode: "✓", ASCII: "[OK]", Color: ColorGreen},
	"failed":    {Unicode: "✗", ASCII: "[FAIL]", Color: ColorRed},
	"skipped":   {Unicode: "○", ASCII: "[SKIP]", Color: ColorYellow},
	"warning":   {Unicode: "⚠", ASCII: "[WARN]", Color: ColorYellow},
	"info":      {Unicode: "ℹ", ASCII: "[INFO]", Color: ColorBlue},
	"upload":    {Unicode: "↑", ASCII: "^", Color: ColorCyan},
	"bullet":    {Unicode: "•", ASCII: "*", Color: ColorWhite},
	"healthy":   {Unicode: "●", ASCII: "[OK]", Color: ColorGreen},
	"degraded":  {Unicode: "◐", ASCII: "[DEGRADED]", Color: ColorYellow},
	"unhealthy": {Unicode: "○", ASCII: "[DOWN]", Color: ColorRed},
}

// NewIconSystem creates an icon system with Unicode detection
func NewIconSystem() IconSystem {
	return newIconSystem(detectUnicodeSupport())
}

func newIconSystem(unicode bool) *iconSystem {
	return &iconSystem{unicodeSupported: unicode, icons: defaultIcons}
}

// detectUnicodeSupport checks if the terminal supports Unicode characters
func detectUnicodeSupport() bool {
	if os.Getenv("FORCE_UNICODE") != "" {
		return true
	}
	if os.Getenv("NO_UNICODE") != "" {
		return false
	}
	if os.Getenv("LANG") == "C" || os.Getenv("LC_ALL") == "C" {
		return false
	}
	if term := os.Getenv("TERM"); term == "dumb" || term == "vt100" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// RenderIcon returns the icon for name, or an empty string for unknown names
func (is *iconSystem) RenderIcon(name string) string {
	icon, ok := is.icons[name]
	if !ok {
		return ""
	}
	if is.unicodeSupported {
		return icon.Unicode
	}
	return icon.ASCII
}

func (is *iconSystem) RenderIconWithColor(name string, colors ColorSystem) string {
	rendered := is.RenderIcon(name)
	if rendered == "" || colors == nil {
		return rendered
	}
	return colors.Colorize(rendered, is.icons[name].Color)
}

func (is *iconSystem) IsUnicodeSupported() bool {
	return is.unicodeSupported
}

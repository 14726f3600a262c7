package display

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Service centralizes formatting of everything the CLI prints. Status lines
// go to the configured writer; structured formats bypass colors and icons.
type Service struct {
	config *DisplayConfig
	colors ColorSystem
	icons  IconSystem
	writer io.Writer
}

// NewService creates a display service. A nil config uses the defaults.
func NewService(config *DisplayConfig) *Service {
	if config == nil {
		config = DefaultDisplayConfig()
	}
	config.SetDefaults()

	theme := GetThemeByName(config.Theme)
	var colors ColorSystem
	if config.IsColorEnabled() {
		colors = NewColorSystem(theme)
	} else {
		colors = newColorSystem(theme, false)
	}

	var icons IconSystem
	if config.UseIcons {
		icons = NewIconSystem()
	} else {
		icons = newIconSystem(false)
	}

	return &Service{
		config: config,
		colors: colors,
		icons:  icons,
		writer: config.Writer,
	}
}

// Config returns the current configuration
func (s *Service) Config() *DisplayConfig {
	return s.config
}

// SetOutput sets the output writer
func (s *Service) SetOutput(w io.Writer) {
	s.writer = w
	s.config.Writer = w
}

// PrintHeader prints a formatted header
func (s *Service) PrintHeader(title string) {
	if s.config.QuietMode || s.config.IsStructured() {
		return
	}
	separator := strings.Repeat("=", len(title)+4)
	text := fmt.Sprintf("\n%s\n  %s  \n%s\n", separator, title, separator)
	fmt.Fprint(s.writer, s.colors.Colorize(text, s.colors.Theme().Primary))
}

// PrintTable prints rows under headers in the configured table style
func (s *Service) PrintTable(headers []string, rows [][]string) {
	formatter := s.newTable()
	formatter.SetHeaders(headers)
	for _, row := range rows {
		formatter.AddRow(row)
	}
	formatter.RenderTo(s.writer)
}

// Success prints a success message
func (s *Service) Success(message string) {
	s.printStatus("success", "SUCCESS", message, s.colors.Theme().Success)
}

// Warning prints a warning message
func (s *Service) Warning(message string) {
	s.printStatus("warning", "WARNING", message, s.colors.Theme().Warning)
}

// Error prints an error message. Errors are printed even in quiet mode.
func (s *Service) Error(message string) {
	s.printStatus("failed", "ERROR", message, s.colors.Theme().Error)
}

// Info prints an info message
func (s *Service) Info(message string) {
	if s.config.QuietMode {
		return
	}
	s.printStatus("info", "INFO", message, s.colors.Theme().Info)
}

func (s *Service) printStatus(icon, level, message string, color Color) {
	if s.config.IsStructured() {
		return
	}
	prefix := s.icons.RenderIcon(icon)
	if prefix == "" || !s.icons.IsUnicodeSupported() {
		prefix = fmt.Sprintf("[%s]", level)
	}
	fmt.Fprintf(s.writer, "%s %s\n", s.colors.Colorize(prefix, color), message)
}

// printStructured writes v as JSON or YAML according to the output format
func (s *Service) printStructured(v interface{}) error {
	switch OutputFormat(s.config.OutputFormat) {
	case FormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
		_, err = fmt.Fprintln(s.writer, string(data))
		return err
	case FormatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to format YAML: %w", err)
		}
		_, err = s.writer.Write(data)
		return err
	default:
		return fmt.Errorf("output format %s is not structured", s.config.OutputFormat)
	}
}

func (s *Service) newTable() *TableFormatter {
	formatter := NewTableFormatter(s.colors, s.colors.Theme())
	if style, ok := tableStyles[s.config.TableStyle]; ok {
		formatter.SetStyle(style)
	}
	width := s.config.MaxTableWidth
	if width == 0 && s.writer != os.Stdout {
		width = -1
	}
	formatter.SetMaxWidth(width)
	return formatter
}

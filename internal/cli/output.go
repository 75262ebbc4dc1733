// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-fido2-server.
//
// go-fido2-server is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeremyhahn/go-fido2-server/internal/config"
	"github.com/jeremyhahn/go-fido2-server/pkg/fido2"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintCredentialList prints a list of registered credentials
func (p *Printer) PrintCredentialList(creds []fido2.CredentialSummary) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"credentials": creds,
		})
	case OutputFormatTable:
		if len(creds) == 0 {
			fmt.Fprintln(p.writer, "No credentials found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-6s %-20s %-25s %-30s\n", "ID", "USER", "DISPLAY NAME", "CREATED")
		fmt.Fprintln(p.writer, strings.Repeat("-", 83))
		for _, cred := range creds {
			fmt.Fprintf(p.writer, "%-6d %-20s %-25s %-30s\n",
				cred.ID, cred.UserID, cred.DisplayName,
				cred.CreatedAt.Format(time.RFC3339))
		}
		return nil
	case OutputFormatText:
		if len(creds) == 0 {
			fmt.Fprintln(p.writer, "No credentials found")
			return nil
		}
		fmt.Fprintln(p.writer, "Credentials:")
		for _, cred := range creds {
			fmt.Fprintf(p.writer, "  - [%d] %s (%s)\n", cred.ID, cred.UserID, cred.DisplayName)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintServerConfig prints the effective server configuration
func (p *Printer) PrintServerConfig(cfg *config.Config) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(cfg)
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, "Server:")
		fmt.Fprintf(p.writer, "  Host:     %s\n", cfg.Server.Host)
		fmt.Fprintf(p.writer, "  Port:     %d\n", cfg.Server.Port)
		fmt.Fprintf(p.writer, "  TLS:      %t\n", cfg.Server.TLS.Enabled)
		fmt.Fprintln(p.writer, "Relying Party:")
		fmt.Fprintf(p.writer, "  ID:       %s\n", cfg.RelyingParty.RPID)
		fmt.Fprintf(p.writer, "  Name:     %s\n", cfg.RelyingParty.RPDisplayName)
		fmt.Fprintf(p.writer, "  Origins:  %s\n", strings.Join(cfg.RelyingParty.RPOrigins, ", "))
		fmt.Fprintln(p.writer, "Storage:")
		fmt.Fprintf(p.writer, "  Backend:  %s\n", cfg.Storage.Backend)
		if cfg.Storage.Backend == "sqlite" {
			fmt.Fprintf(p.writer, "  Path:     %s\n", cfg.Storage.Path)
		}
		fmt.Fprintln(p.writer, "Logging:")
		fmt.Fprintf(p.writer, "  Level:    %s\n", cfg.Logging.Level)
		fmt.Fprintf(p.writer, "  Format:   %s\n", cfg.Logging.Format)
		fmt.Fprintln(p.writer, "Metrics:")
		fmt.Fprintf(p.writer, "  Enabled:  %t\n", cfg.Metrics.Enabled)
		fmt.Fprintf(p.writer, "  Path:     %s\n", cfg.Metrics.Path)
		fmt.Fprintf(p.writer, "JWT Auth:   %t\n", cfg.Auth.JWT != nil)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintMessage prints an informational message
func (p *Printer) PrintMessage(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"message": message,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

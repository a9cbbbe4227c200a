// Package mnemocmder
package mnemocmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/coilworks/mnemo/cmd/mnemo/config"
	searchcmder "github.com/coilworks/mnemo/cmd/mnemo/search"
	servecmder "github.com/coilworks/mnemo/cmd/mnemo/serve"
	versioncmder "github.com/coilworks/mnemo/cmd/version"
)

const mnemoLongDesc string = `Mnemo is automatic memory for your agents.

It sits between an agent and its conversational API, records every
completed exchange as a memory, and serves those memories back over a
query API and MCP tools.

Run services using:
  mnemo serve api      Run the memory API server
  mnemo serve proxy    Run the capture proxy
  mnemo serve          Run both servers together`

const mnemoShortDesc string = "Mnemo - Agent Memory"

func NewMnemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mnemo",
		Short: mnemoShortDesc,
		Long:  mnemoLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .mnemo/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}

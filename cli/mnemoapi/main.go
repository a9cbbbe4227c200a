package main

import (
	"fmt"
	"os"

	apicmder "github.com/coilworks/mnemo/cmd/mnemo/serve/api"
)

func main() {
	cmd := apicmder.NewAPICmd()

	cmd.Use = "mnemoapi"
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .mnemo/ config directory")

	err := cmd.Execute()
	if err != nil {
		fmt.Printf("Error executing root command: %v\n", err)
		os.Exit(1)
	}
}

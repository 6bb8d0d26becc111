//go:build !windows

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(dashboardServiceCmd)
}

var dashboardServiceCmd = &cobra.Command{
	Use:   "dashboard-service",
	Short: "Run the web dashboard as a Windows service",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Service management is only available on Windows.")
	},
}

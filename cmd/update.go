package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/blang/semver"
	"github.com/rhysd/go-github-selfupdate/selfupdate"
	"github.com/spf13/cobra"

	"github.com/LeonardoPuccio/smartmove/pkg/runtime"
)

func UpdateCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "update",
		Short: "Update to latest version",
		Long:  `This command can be used to self-update to the latest version.`,
	}

	command.RunE = func(cmd *cobra.Command, args []string) error {
		v, err := semver.Parse(runtime.Version)
		if err != nil {
			return fmt.Errorf("parse current build version: %w", err)
		}

		fmt.Println("Checking for the latest version...")
		latest, found, err := selfupdate.DetectLatest("LeonardoPuccio/smartmove")
		if err != nil {
			return fmt.Errorf("determine latest available version: %w", err)
		}

		if !found || latest.Version.LTE(v) {
			fmt.Printf("Already using the latest version: %v\n", runtime.Version)
			return nil
		}

		fmt.Printf("Do you want to update to the latest version: %v? (y/n):\n", latest.Version)
		input, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil || (input != "y\n" && input != "n\n") {
			return fmt.Errorf("validate input")
		} else if input == "n\n" {
			return nil
		}

		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("locate current executable path: %w", err)
		}

		if err := selfupdate.UpdateTo(latest.AssetURL, exe); err != nil {
			return fmt.Errorf("update existing binary to latest release: %w", err)
		}

		fmt.Printf("Successfully updated to the latest version: %v\n", latest.Version)
		return nil
	}

	return command
}

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cleanStagingOnly bool
var cleanAgree bool

var cleanCmd = &cobra.Command{
	Use:     "clean",
	Aliases: []string{"prune", "cleanup"},
	Short:   "Remove all toolchains and staged downloads created by bisect-rustc",
	Long: `This command removes all artifacts created by bisect-rustc.
This includes the bisector-* toolchains installed into the rustup toolchains
directory as well as leftover staged downloads in the rustup tmp directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		log := newLogger()
		log.SetLevel(logrus.InfoLevel)

		home := os.Getenv("RUSTUP_HOME")
		if home == "" {
			userHome, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			home = filepath.Join(userHome, ".rustup")
		}

		staged, err := bisectorEntries(filepath.Join(home, "tmp"))
		if err != nil {
			return err
		}
		var toolchains []string
		if !cleanStagingOnly {
			toolchains, err = bisectorEntries(filepath.Join(home, "toolchains"))
			if err != nil {
				return err
			}
		}

		if len(staged)+len(toolchains) == 0 {
			toolchainString := " or toolchains"
			if cleanStagingOnly {
				toolchainString = ""
			}
			log.Infof("No staged downloads%s to remove. Exiting...", toolchainString)
			return nil
		}

		confirmation := fmt.Sprintf("About to delete %d staged downloads", len(staged))
		if !cleanStagingOnly {
			confirmation += fmt.Sprintf(" and %d toolchains", len(toolchains))
		}
		log.Info(confirmation + ".")

		if !cleanAgree {
			prompt := promptui.Prompt{
				Label:     "Proceed",
				IsConfirm: true,
			}
			if _, err := prompt.Run(); err != nil {
				log.Info("Exiting...")
				return nil
			}
		}

		for _, path := range append(staged, toolchains...) {
			log.Infof("Deleting %s", path)
			if err := os.RemoveAll(path); err != nil {
				return fmt.Errorf("failed to remove %s - %v", path, err)
			}
		}

		log.Info("Done cleaning up.")
		return nil
	},
}

// bisectorEntries lists the bisector-prefixed entries of dir. A missing dir
// is simply empty.
func bisectorEntries(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "bisector-") {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	return paths, nil
}

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().BoolVarP(&cleanStagingOnly, "staging", "s", false, "Only delete staged downloads, no toolchains.")
	cleanCmd.Flags().BoolVarP(&cleanAgree, "assume-yes", "y", false, `Bypass "Are you sure?" message.`)
}

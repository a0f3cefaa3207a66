package cmd

import (
	"github.com/spf13/cobra"
)

func init() {
	RegisterCommand(func() *cobra.Command {
		return &cobra.Command{
			Use:   "config",
			Short: "Print the resolved configuration",
			Long: `Resolve renderloop.yaml (or the file given with --config), apply
defaults and print the result as YAML.`,
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				resolved, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				out, err := resolved.Marshal()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(out)
				return err
			},
		}
	})
}

package cmd

import (
	"os"

	"github.com/andresmejia3/docmask/internal/utils"
	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the effective classification rules as YAML",
	Long:  "The output is a valid rules file; save it, edit the keywords and pass it back with --rules.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		rules, err := loadRules(Cfg)
		if err != nil {
			utils.ShowError("Invalid rules", err)
			return err
		}
		b, err := rules.YAML()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(b)
		return err
	},
}

func init() {
	rulesCmd.Flags().String("rules", "", "YAML file overriding the classification keywords")
	rootCmd.AddCommand(rulesCmd)
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var ValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Compile a session script and report token problems",
	Long: `Load and compile the session script without sending any request. This checks:
- YAML syntax and unknown keys
- host, header_set and sample references
- body encodings and status lists
- template tokens referenced before anything binds them (warnings)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateScript(cmd, viper.GetViper())
	},
}

func validateScript(cmd *cobra.Command, v *viper.Viper) error {
	doc, err := loadConfig(v)
	if err != nil {
		return err
	}
	if _, err := doc.AuthEntries(); err != nil {
		return err
	}
	sc, err := loadScript(doc)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	name := sc.Name
	if name == "" {
		name = doc.ScriptPath()
	}
	fmt.Fprintf(out, "script %s: %d pages, %d steps, %d requests\n", name, len(sc.Pages), sc.StepCount(), len(sc.Requests()))
	if s := sc.SampleRequest(); s != nil {
		fmt.Fprintf(out, "sample: %d %s\n", s.ID, s.Label)
	}

	issues := sc.CheckTokens(tokenNames(doc.GetEnv()), doc.AuthNames())
	for _, issue := range issues {
		fmt.Fprintf(out, "warning: %s\n", issue.String())
	}
	if len(issues) == 0 {
		fmt.Fprintln(out, "script is valid")
	} else {
		fmt.Fprintf(out, "script is valid with %d warning(s)\n", len(issues))
	}
	return nil
}

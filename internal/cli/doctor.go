package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jaa/ymd/internal/config"
	"github.com/jaa/ymd/internal/doctor"
	"github.com/jaa/ymd/internal/exitcode"
)

func newDoctorCommand(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and filesystem readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Doctor diagnoses broken setups, so it loads without the usual
			// validation gate and reports what it finds instead of bailing.
			wd, err := os.Getwd()
			if err != nil {
				return withExitCode(exitcode.RuntimeFailure, err)
			}
			cfg, err := config.Load(config.LoadOptions{
				ExplicitPath: strings.TrimSpace(app.Opts.ConfigPath),
				WorkingDir:   wd,
			})
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}
			cfg, err = resolvePaths(cfg)
			if err != nil {
				return withExitCode(exitcode.InvalidConfig, err)
			}

			report := doctor.NewChecker().Check(context.Background(), cfg)

			if app.Opts.JSON {
				if err := json.NewEncoder(app.IO.Out).Encode(report); err != nil {
					return withExitCode(exitcode.RuntimeFailure, err)
				}
			} else {
				for _, check := range report.Checks {
					fmt.Fprintf(app.IO.Out, "[%s] %s: %s\n", check.Severity, check.Name, check.Message)
				}
			}

			if report.HasErrors() {
				return withExitCode(exitcode.MissingDependency,
					fmt.Errorf("doctor found %d error(s)", report.ErrorCount()))
			}
			return nil
		},
	}
}

package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jaa/ymd/internal/config"
	"github.com/jaa/ymd/internal/exitcode"
	"github.com/jaa/ymd/internal/segments"
)

func newInitCommand(app *AppContext) *cobra.Command {
	force := false

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create starter config, cache dir, and segment category list",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(app.Opts.ConfigPath)
			if path == "" {
				userPath, err := config.UserConfigPath()
				if err != nil {
					return withExitCode(exitcode.RuntimeFailure, err)
				}
				path = userPath
			}

			if err := config.EnsureConfigDir(path); err != nil {
				return withExitCode(exitcode.RuntimeFailure, err)
			}

			if _, err := os.Stat(path); err == nil && !force {
				if app.Opts.NoInput || !isTTY(os.Stdin) {
					return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("config already exists at %s (rerun with --force)", path))
				}
				confirmed, confirmErr := promptYesNo(app, fmt.Sprintf("Config already exists at %s. Overwrite?", path))
				if confirmErr != nil {
					return withExitCode(exitcode.RuntimeFailure, confirmErr)
				}
				if !confirmed {
					fmt.Fprintln(app.IO.Out, "Initialization canceled.")
					return nil
				}
			}

			if err := os.WriteFile(path, []byte(config.DefaultTemplate()), 0o644); err != nil {
				return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("write config file: %w", err))
			}
			fmt.Fprintf(app.IO.Out, "Wrote config: %s\n", path)

			defaults := config.DefaultConfig()
			cacheDir, err := config.ExpandPath(defaults.Cache.Dir)
			if err == nil && cacheDir != "" {
				if err := os.MkdirAll(cacheDir, 0o755); err != nil {
					return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("create cache directory %s: %w", cacheDir, err))
				}
				fmt.Fprintf(app.IO.Out, "Ensured cache dir: %s\n", cacheDir)
			}

			categoriesFile, err := config.ExpandPath(defaults.Segments.CategoriesFile)
			if err == nil && categoriesFile != "" {
				if _, err := segments.LoadCategories(categoriesFile); err != nil {
					return withExitCode(exitcode.RuntimeFailure, fmt.Errorf("write segment categories: %w", err))
				}
				fmt.Fprintf(app.IO.Out, "Ensured segment categories: %s\n", categoriesFile)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")
	return cmd
}

func promptYesNo(app *AppContext, prompt string) (bool, error) {
	fmt.Fprintf(app.IO.Out, "%s [y/N]: ", prompt)
	reader := bufio.NewReader(app.IO.In)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	response := strings.ToLower(strings.TrimSpace(line))
	return response == "y" || response == "yes", nil
}

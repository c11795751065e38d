// Package cmd implements the CLI for composites and tasks declared in build scripts
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/e2immu/e2build/pkg"
	"github.com/e2immu/e2build/pkg/aggregate"
	"github.com/e2immu/e2build/pkg/buildsys"
	"github.com/e2immu/e2build/pkg/config"
	"github.com/e2immu/e2build/pkg/workspace"
)

type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    *config.Config
	logger zerolog.Logger
	ws     *workspace.Workspace
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "configuration file (default "+config.DefaultFile+" if it exists)")
	cmd.Flags().Bool("log-json", false, "print log messages as JSON")
}

// splitArgs separates option=value pairs from names
func splitArgs(args []string) ([]string, map[string]string) {
	names := make([]string, 0, len(args))
	options := make(map[string]string)

	for _, part := range args {
		pos := strings.Index(part, "=")
		if pos > -1 {
			options[part[:pos]] = part[pos+1:]
		} else {
			names = append(names, part)
		}
	}

	return names, options
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var files []string
	cfgFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if cfgFile != "" {
		files = append(files, cfgFile)
	}

	cfg, loader := config.Loader(files...)
	if err = loader.Load(); err != nil {
		return nil, eris.Wrap(err, "Failed to load configuration")
	}

	if cmd.Flags().Changed("log-json") {
		if cfg.Log.JSON, err = cmd.Flags().GetBool("log-json"); err != nil {
			return nil, err
		}
	}

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup loads the configuration, the logger and the workspace of the nearest build script
func setup(cmd *cobra.Command, options map[string]string, runOpts workspace.Options) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	setupErrorMarshaller(cfg.Debug)
	var logger zerolog.Logger
	if cfg.Log.JSON {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(NewConsoleWriter(os.Stderr, cfg.Debug))
	}
	logger = logger.Level(cfg.LogLevel())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	ctx = buildsys.WithLogger(ctx, &logger)

	wd, err := os.Getwd()
	if err != nil {
		cancel()
		return nil, eris.Wrap(err, "Failed to retrieve the current working directory")
	}

	scriptPath, err := pkg.FindScript(wd, cfg.Script)
	if err != nil {
		cancel()
		return nil, err
	}

	runOpts.Root = filepath.Dir(scriptPath)
	runOpts.Script = cfg.Script
	runOpts.Options = options
	runOpts.CacheDir = cfg.CacheDir()

	ws, err := workspace.Load(ctx, runOpts)
	if err != nil {
		cancel()
		return nil, err
	}

	return &session{
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		logger: logger,
		ws:     ws,
	}, nil
}

func getProgressBar(length int, desc string) *progressbar.ProgressBar {
	if os.Getenv("CI") == "true" {
		return progressbar.NewOptions(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.NewOptions(length,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
	)
}

func printReport(report *aggregate.Report) {
	pkg.PrintTask(fmt.Sprintf("%s: %d succeeded, %d failed, %d skipped", report.Composite,
		report.Count(aggregate.StatusSucceeded), report.Count(aggregate.StatusFailed), report.Count(aggregate.StatusSkipped)))

	for _, result := range report.Results {
		line := fmt.Sprintf("%s (%s)", result.Task, result.Duration.Round(time.Millisecond))
		switch result.Status {
		case aggregate.StatusSucceeded:
			pkg.PrintSubtask(line)
		case aggregate.StatusSkipped:
			pkg.PrintSkipped(result.Task.String() + " skipped")
		default:
			pkg.PrintError(line + " failed")
		}
	}
}

func printAvailable(ws *workspace.Workspace) {
	composites := ws.Composites()
	if len(composites) > 0 {
		fmt.Println("Available composites:")
		maxNameLen := 0
		for _, composite := range composites {
			if len(composite.Name) > maxNameLen {
				maxNameLen = len(composite.Name)
			}
		}

		lineFmt := fmt.Sprintf(" * %%-%ds %%s (%%s)\n", maxNameLen+3)
		for _, composite := range composites {
			fmt.Printf(lineFmt, composite.Name+":", composite.Desc, composite.Selection)
		}
	}

	tasks := ws.RootTasks()
	if len(tasks) > 0 {
		fmt.Println("Available tasks:")
		maxNameLen := 0
		sortedNames := tasks.Names()
		for _, name := range sortedNames {
			if len(name) > maxNameLen {
				maxNameLen = len(name)
			}
		}
		sort.Strings(sortedNames)

		lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
		for _, name := range sortedNames {
			fmt.Printf(lineFmt, name+":", tasks[name].Desc)
		}
	}

	options := ws.Options()
	if len(options) > 0 {
		fmt.Println("Options:")
		names := make([]string, 0, len(options))
		for name := range options {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			fmt.Printf(" * %s=%s  %s\n", name, options[name].Default(), options[name].Help)
		}
	}
}

var RunCmd = &cobra.Command{
	Use:   "run [name...] [option=value...]",
	Short: "Run composites or tasks",
	Long: `This command loads the first tasks.star file it finds, configures every included build and
runs the given composites or root tasks. Without names, the available ones are listed.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, options := splitArgs(args)

		dryRun, err := cmd.Flags().GetBool("dry")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		s, err := setup(cmd, options, workspace.Options{DryRun: dryRun, Force: force})
		if err != nil {
			return err
		}
		defer s.cancel()

		if len(names) == 0 {
			printAvailable(s.ws)
			return nil
		}

		sched := s.cfg.SchedulerPolicy()
		if cmd.Flags().Changed("parallel") {
			if sched.Parallelism, err = cmd.Flags().GetInt("parallel"); err != nil {
				return err
			}

			if sched.Parallelism == 0 {
				sched.Parallelism = runtime.NumCPU()
			}
		}

		if cmd.Flags().Changed("continue") {
			if sched.Continue, err = cmd.Flags().GetBool("continue"); err != nil {
				return err
			}
		}

		for _, name := range names {
			total := 1
			if composite, ok := s.ws.Lookup(name); ok {
				deps, err := composite.Deps()
				if err != nil {
					return err
				}
				total = len(deps)
			}

			bar := getProgressBar(total, name)
			sched.Observer = func(aggregate.Result) {
				_ = bar.Add(1)
			}

			report, err := s.ws.Run(s.ctx, name, sched)
			_ = bar.Finish()
			if report != nil {
				printReport(report)
			}

			if err != nil {
				s.logger.Error().Err(err).Msgf("%s failed", name)
				return eris.Errorf("%s failed", name)
			}
		}

		return nil
	},
}

var BuildsCmd = &cobra.Command{
	Use:          "builds",
	Short:        "List the included builds",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := setup(cmd, nil, workspace.Options{})
		if err != nil {
			return err
		}
		defer s.cancel()

		for _, build := range s.ws.Builds() {
			ops, _ := s.ws.Operations(build.ID)
			relDir, err := filepath.Rel(s.ws.Root(), build.Dir)
			if err != nil {
				relDir = build.Dir
			}

			pkg.PrintTask(fmt.Sprintf("%s (%s)", build.ID, relDir))
			pkg.PrintSubtask(strings.Join(ops, ", "))
		}
		return nil
	},
}

var DepsCmd = &cobra.Command{
	Use:          "deps <composite>",
	Short:        "Print the resolved dependencies of a composite",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := setup(cmd, nil, workspace.Options{})
		if err != nil {
			return err
		}
		defer s.cancel()

		composite, ok := s.ws.Lookup(args[0])
		if !ok {
			return eris.Errorf("composite %s not found", args[0])
		}

		deps, err := composite.Deps()
		if err != nil {
			return err
		}

		pkg.PrintTask(fmt.Sprintf("%s (%s)", composite.Name, composite.Selection))
		for _, dep := range deps {
			pkg.PrintSubtask(dep.String())
		}
		return nil
	},
}

func init() {
	RunCmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	RunCmd.Flags().BoolP("force", "f", false, "force build; always execute the passed steps even if they don't have to run")
	RunCmd.Flags().IntP("parallel", "j", 1, "number of included builds to run at once (0 uses one per CPU)")
	RunCmd.Flags().Bool("continue", false, "keep running the remaining builds after a failure")

	for _, cmd := range []*cobra.Command{RunCmd, BuildsCmd, DepsCmd} {
		addCommonFlags(cmd)
	}
}

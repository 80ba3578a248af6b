package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Beefybananas/mega-scraper/internal/mega"
	"github.com/Beefybananas/mega-scraper/internal/mirror"
	"github.com/Beefybananas/mega-scraper/internal/utils"
	"github.com/Beefybananas/mega-scraper/internal/version"
)

var (
	home, _            = os.UserHomeDir()
	defaultConfigDir   = filepath.Join(home, ".megascraper")
	configFileName     = "config"
	errSyncHadFailures = errors.New("sync completed with failures")
)

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
)

// consoleLevel drives the terminal handler; it starts at Info and is
// lowered once cobra has parsed the -v count.
var consoleLevel = new(slog.LevelVar)

var rootCmd = &cobra.Command{
	Use:     "mega-scraper",
	Short:   "Mirror a public Mega.nz folder into a local directory",
	Long:    "Scrape a public Mega.nz folder from its exported link and update a local folder with the missing or changed contents of the remote location.",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		consoleLevel.Set(consoleLevelFor(verbosity))
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		remoteURL := viper.GetString("remote")
		localPath := viper.GetString("local")
		if remoteURL == "" {
			return fmt.Errorf("remote folder link is required (--remote or config)")
		}
		if localPath == "" {
			return fmt.Errorf("local path is required (--local or config)")
		}

		cmd.SilenceUsage = true
		ctx := cmd.Context()

		client := mega.NewClient(remoteURL)
		if err := client.EnsureServer(ctx); err != nil {
			return err
		}
		if err := client.Login(ctx); err != nil {
			return err
		}
		defer func() {
			if err := client.Logout(context.Background()); err != nil {
				slog.Debug("logout", "error", err)
			}
		}()

		m, err := mirror.New(localPath, client, client, mirror.Options{
			Concurrency:  viper.GetInt("concurrency"),
			Prune:        viper.GetBool("prune"),
			DryRun:       viper.GetBool("dry_run"),
			MaxRetries:   viper.GetInt("max_retries"),
			ListParallel: viper.GetInt("list_parallel"),
		})
		if err != nil {
			return err
		}

		slog.Info("sync start", "version", version.Short(), "remote", remoteURL, "local", m.Root())
		report, err := m.Sync(ctx)
		if err != nil && report == nil {
			return err
		}

		printReport(cmd, report)
		if report.Failed() {
			return errSyncHadFailures
		}
		return err
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("remote", "r", "", "Remote Mega.nz folder link (URL with key)")
	rootCmd.Flags().StringP("local", "l", "", "Local directory to mirror into")
	rootCmd.Flags().IntP("concurrency", "n", mirror.DefaultConcurrency, "Download worker count")
	rootCmd.Flags().Bool("prune", false, "Delete local files absent from the remote")
	rootCmd.Flags().Bool("dry-run", false, "Compute and print the action plan without executing")
	rootCmd.Flags().Bool("json", false, "Print the run report as JSON")
	rootCmd.Flags().CountP("verbose", "v", "Increase console log verbosity (repeatable)")
	rootCmd.PersistentFlags().StringP("config", "c", filepath.Join(defaultConfigDir, "config.json"), "Config file path")
}

func main() {
	setupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errSyncHadFailures) {
			fmt.Fprintf(os.Stderr, "%s %v\n", red("error:"), err)
		}
		os.Exit(1)
	}
}

// consoleLevelFor maps the repeated -v count onto console log levels:
// info by default, debug at -v, full command transcripts at -vv.
func consoleLevelFor(count int) slog.Level {
	switch {
	case count >= 2:
		return utils.LevelTrace
	case count == 1:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func setupLogging() {
	consoleHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      consoleLevel,
		TimeFormat: time.TimeOnly,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})

	handlers := []slog.Handler{consoleHandler}

	// one timestamped log file per run, capturing everything regardless
	// of the console level
	logDir := filepath.Join(defaultConfigDir, "logs")
	if err := utils.EnsureDir(logDir); err == nil {
		logPath := filepath.Join(logDir, time.Now().Format("2006-01-02T15-04-05")+".log")
		if file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644); err == nil {
			handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{
				Level: utils.LevelTrace,
			}))
		}
	}

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(handlers...)))
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(defaultConfigDir)
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return fmt.Errorf("config read %q: %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("remote", cmd.Flags().Lookup("remote"))
	viper.BindPFlag("local", cmd.Flags().Lookup("local"))
	viper.BindPFlag("concurrency", cmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("prune", cmd.Flags().Lookup("prune"))
	viper.BindPFlag("dry_run", cmd.Flags().Lookup("dry-run"))
	viper.SetDefault("max_retries", mirror.DefaultMaxRetries)

	viper.SetEnvPrefix("MEGASCRAPER")
	viper.AutomaticEnv()

	return nil
}

func printReport(cmd *cobra.Command, report *mirror.Report) {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if data, err := report.JSON(); err == nil {
			fmt.Println(string(data))
		}
		return
	}

	if report.DryRun {
		fmt.Printf("%s %d planned actions:\n", cyan("dry run:"), len(report.Planned))
		for _, a := range report.Planned {
			fmt.Printf("  %s\n", a)
		}
		return
	}

	fmt.Printf("%s dirs %d/%d, fetched %d/%d, skipped %d, pruned %d/%d in %s\n",
		green("done:"),
		report.MkDir.Succeeded, report.MkDir.Attempted,
		report.Fetch.Succeeded, report.Fetch.Attempted,
		report.Skip.Succeeded,
		report.Prune.Succeeded, report.Prune.Attempted,
		report.Duration.Round(time.Millisecond),
	)
	for _, f := range report.Failures {
		fmt.Printf("  %s %s %s: %s\n", red("failed:"), f.Op, f.Path, f.Err)
	}
}

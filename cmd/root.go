package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/LeonardoPuccio/smartmove/pkg/config"
	"github.com/LeonardoPuccio/smartmove/pkg/logger"
	"github.com/LeonardoPuccio/smartmove/pkg/mover"
	"github.com/LeonardoPuccio/smartmove/pkg/notification"
	"github.com/LeonardoPuccio/smartmove/pkg/progress"
)

var (
	flagLogLevel      = 0
	flagConfigFile    string
	flagLogFile       string
	flagDryRun        bool
	flagQuiet         bool
	flagParents       bool
	flagComprehensive bool
	flagNoProgress    bool
	flagScanner       string
)

func RootCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "smartmove SOURCE DEST",
		Short: "Cross-filesystem mover with hardlink preservation",
		Long: `Moves files and directories between filesystems while preserving
hardlink relationships that a plain copy-then-delete would break.
Same-filesystem moves fall back to a plain rename.
`,
		Example: `  smartmove /mnt/ssd/movie /mnt/hdd/movie --dry-run
  smartmove /mnt/ssd/movie /mnt/hdd/movie -p --comprehensive`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runMove,
	}

	command.PersistentFlags().StringVarP(&flagConfigFile, "config", "c", config.DefaultConfigPath(), "Config file")
	command.PersistentFlags().StringVarP(&flagLogFile, "log", "l", "", "Log file")
	command.PersistentFlags().CountVarP(&flagLogLevel, "verbose", "v", "Verbose level")

	command.Flags().BoolVar(&flagDryRun, "dry-run", false, "Preview actions without executing moves")
	command.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress per-file output")
	command.Flags().BoolVarP(&flagParents, "parents", "p", false, "Create parent directories as needed")
	command.Flags().BoolVar(&flagComprehensive, "comprehensive", false, "Scan all mounted filesystems for hardlinks (slower)")
	command.Flags().BoolVar(&flagNoProgress, "no-progress", false, "Disable progress display")
	command.Flags().StringVar(&flagScanner, "scanner", "", "Hardlink scanner: native or find")

	command.AddCommand(VersionCommand())
	command.AddCommand(UpdateCommand())

	return command
}

func runMove(cmd *cobra.Command, args []string) error {
	start := time.Now()

	if err := logger.Init(flagLogLevel, flagLogFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := config.Init(flagConfigFile); err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	cfg := config.Config
	applyFlagOverrides(cmd, cfg)

	log := logger.GetLogger("smartmove")

	if cfg.PreserveOwnership && os.Geteuid() != 0 {
		log.Debug("Not running as root, ownership preservation may be partial")
	}

	m, err := mover.New(args[0], args[1], cfg)
	if err != nil {
		log.WithError(err).Error("Validation failed")
		return err
	}

	var bar *progress.Bar
	if !cfg.Quiet && !cfg.DryRun {
		if bar = progress.New(int(m.Stats().Files), "Moving", flagNoProgress); bar != nil {
			m.SetProgress(bar)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := m.Move(ctx)
	if bar != nil {
		bar.Stop()
	}
	if err != nil {
		log.WithError(err).Error("Operation failed")
		return err
	}

	log.Infof("Moved %d files (%s), %d hardlink groups preserved",
		result.FilesProcessed, humanize.IBytes(uint64(result.BytesMoved)), result.GroupsPreserved)
	logger.ShowTimeTaken(log, start)

	notify(log, cfg, args[0], m.DestPath(), result, time.Since(start))

	if result.Failures > 0 {
		return fmt.Errorf("%d files failed to move", result.Failures)
	}
	return nil
}

// applyFlagOverrides lets explicitly set flags win over config file
// values.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Configuration) {
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = flagDryRun
	}
	if cmd.Flags().Changed("quiet") {
		cfg.Quiet = flagQuiet
	}
	if cmd.Flags().Changed("parents") {
		cfg.CreateParents = flagParents
	}
	if cmd.Flags().Changed("comprehensive") {
		cfg.ComprehensiveScan = flagComprehensive
	}
	if cmd.Flags().Changed("scanner") {
		cfg.Scanner = flagScanner
	}
}

func notify(log *logrus.Entry, cfg *config.Configuration, source, dest string, result *mover.Result, runTime time.Duration) {
	noti := notification.NewDiscordSender(log, cfg.Notifications)
	if !noti.CanSend() {
		log.Debug("Notifications disabled, skipping...")
		return
	}

	fields := []notification.Field{
		{Name: "Source", Value: source},
		{Name: "Destination", Value: dest},
		{Name: "Hardlink groups preserved", Value: fmt.Sprintf("%d", result.GroupsPreserved)},
	}
	if result.Failures > 0 {
		fields = append(fields, notification.Field{Name: "Failures", Value: fmt.Sprintf("%d", result.Failures)})
	}

	description := fmt.Sprintf("Moved **%d** files | Total **%s**",
		result.FilesProcessed, humanize.IBytes(uint64(result.BytesMoved)))

	if err := noti.Send("Move", description, runTime, fields, cfg.DryRun); err != nil {
		log.WithError(err).Error("Failed sending notification")
	}
}

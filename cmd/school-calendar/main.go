package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vidhyam/school-calendar/internal/calendar"
	"github.com/vidhyam/school-calendar/internal/config"
	"github.com/vidhyam/school-calendar/internal/daemon"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	configPath string
	envFile    string
	cfg        *config.Config
	logger     *zap.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "school-calendar",
		Short:         "Holiday-aware school calendar",
		Long:          "Month calendars, attendance statistics and holiday checks for a school",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(configPath, envFile)
			if err != nil {
				initLogger("info")
				return err
			}

			if cfg.Log.File != "" {
				logger, err = initFileLogger(cfg.Log.File, cfg.Log.Level)
				if err != nil {
					initLogger(cfg.Log.Level) // Fallback to console
				}
			} else {
				initLogger(cfg.Log.Level)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (default: search ., $HOME/.school-calendar, /etc/school-calendar)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before the config")

	rootCmd.AddCommand(calendarCmd(), statsCmd(), checkCmd(), warmCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func calendarCmd() *cobra.Command {
	var year, month int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Show a month grid with Sundays and holidays marked",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			if year == 0 || month == 0 {
				now := app.service.Now()
				if year == 0 {
					year = now.Year()
				}
				if month == 0 {
					month = int(now.Month())
				}
			}

			info, err := app.service.MonthCalendar(cmd.Context(), year, time.Month(month))
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), info)
			}
			renderMonth(cmd.OutOrStdout(), info)
			return nil
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "Year (default: current)")
	cmd.Flags().IntVar(&month, "month", 0, "Month 1-12 (default: current)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a grid")

	return cmd
}

func statsCmd() *cobra.Command {
	var roleName, userID, from, to string
	var days, asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize attendance for a student or employee",
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := calendar.ParseRole(roleName)
			if err != nil {
				return err
			}

			app, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.service.Report(cmd.Context(), role, userID, from, to, days)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			renderSummary(cmd.OutOrStdout(), report.Summary)
			renderTimeline(cmd.OutOrStdout(), report.Days)
			return nil
		},
	}

	cmd.Flags().StringVar(&roleName, "role", string(calendar.RoleStudent), "student or employee")
	cmd.Flags().StringVar(&userID, "user", "", "Student or employee ID")
	cmd.Flags().StringVar(&from, "from", "", "Range start YYYY-MM-DD (default: first record)")
	cmd.Flags().StringVar(&to, "to", "", "Range end YYYY-MM-DD (default: today)")
	cmd.Flags().BoolVar(&days, "days", false, "List every day in the range")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func checkCmd() *cobra.Command {
	var date, roleName, userID, class string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether a date is a holiday",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject := calendar.Subject{ID: userID, Class: class}
			if roleName != "" {
				role, err := calendar.ParseRole(roleName)
				if err != nil {
					return err
				}
				subject.Role = role
			}

			app, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			check, err := app.service.CheckHoliday(cmd.Context(), date, subject)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), check)
			}
			renderCheck(cmd.OutOrStdout(), check)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Date YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&roleName, "role", "", "student or employee, enables exemptions")
	cmd.Flags().StringVar(&userID, "user", "", "Student or employee ID")
	cmd.Flags().StringVar(&class, "class", "", "Student class, enables class-scoped holidays")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

func warmCmd() *cobra.Command {
	var interval time.Duration
	var schedule string
	var once, invalidate bool

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Keep the Redis holiday cache filled",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.Cache.Enabled() {
				return fmt.Errorf("cache.redis_addr is not configured")
			}

			app, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			if app.cache == nil {
				return fmt.Errorf("redis cache unavailable")
			}

			if invalidate {
				if err := app.cache.Invalidate(cmd.Context(), cfg.School.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Dropped cached holidays for %s\n", cfg.School.ID)
				return nil
			}

			var d *daemon.Daemon
			if schedule != "" {
				loc, err := cfg.School.Location()
				if err != nil {
					return err
				}
				d, err = daemon.NewScheduledDaemon(app.cache, cfg.School.ID, schedule, loc, logger)
				if err != nil {
					return err
				}
			} else {
				if interval <= 0 {
					interval = cfg.Cache.GetTTL() / 2
				}
				d = daemon.NewDaemon(app.cache, cfg.School.ID, interval, logger)
			}

			if once {
				n, err := d.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cached %d holiday(s) for %s\n", n, cfg.School.ID)
				return nil
			}

			return d.Start()
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Refresh interval (default: half of cache.ttl)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron schedule in the school time zone, e.g. \"30 5 * * *\" (overrides --interval)")
	cmd.Flags().BoolVar(&once, "once", false, "Refresh once and exit")
	cmd.Flags().BoolVar(&invalidate, "invalidate", false, "Drop the cached holidays and exit")

	return cmd
}

func initLogger(level string) {
	logConfig := zap.NewProductionConfig()
	logConfig.EncoderConfig.TimeKey = "timestamp"
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logConfig.Level = zap.NewAtomicLevelAt(parseLevel(level))

	var err error
	logger, err = logConfig.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
}

func initFileLogger(logFile string, level string) (*zap.Logger, error) {
	logWriter := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    100, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(logWriter),
		parseLevel(level),
	)

	return zap.New(core), nil
}

func parseLevel(level string) zapcore.Level {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel
	}
	return zapLevel
}

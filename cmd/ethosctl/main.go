package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm/logger"

	"github.com/ethoslog/internal/config"
	"github.com/ethoslog/internal/db"
	"github.com/ethoslog/internal/progress"
	"github.com/ethoslog/internal/service"
)

var rootCmd = &cobra.Command{
	Use:   "ethosctl",
	Short: "Ethoslog maintenance CLI",
	Long: `ethosctl inspects and maintains progress ledgers offline.
- ledger show: print a user's level, XP per category and achievements.
- ledger recompute: re-derive levels from stored XP and report history drift.
- history compact: fold old XP transactions into one summary entry per user.
- events purge: delete contract event records past the retention window.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ETHOS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("database", "d", "ethoslog.db", "sqlite database path")
	rootCmd.PersistentFlags().String("achievements", "", "achievement catalog YAML (embedded catalog when empty)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Int("event-retention-days", 90, "default retention for events purge")
	_ = viper.BindPFlag("database", rootCmd.PersistentFlags().Lookup("database"))
	_ = viper.BindPFlag("achievements", rootCmd.PersistentFlags().Lookup("achievements"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("event-retention-days", rootCmd.PersistentFlags().Lookup("event-retention-days"))
}

func registerCommands() {
	ledger := &cobra.Command{Use: "ledger", Short: "Inspect ledgers"}
	ledger.AddCommand(ledgerShowCmd())
	ledger.AddCommand(ledgerRecomputeCmd())

	history := &cobra.Command{Use: "history", Short: "Maintain XP history"}
	history.AddCommand(historyCompactCmd())

	events := &cobra.Command{Use: "events", Short: "Maintain contract event records"}
	events.AddCommand(eventsPurgeCmd())

	rootCmd.AddCommand(ledger, history, events)
}

func openMaintenance() (*service.MaintenanceService, error) {
	gdb, err := db.Open(viper.GetString("database"), logger.Default.LogMode(logger.Warn))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	catalog, err := config.LoadCatalog(viper.GetString("achievements"))
	if err != nil {
		return nil, err
	}
	stack := service.NewStack(gdb, catalog, service.StackOptions{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	})
	return service.NewMaintenanceService(stack), nil
}

func ledgerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a user's ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openMaintenance()
			if err != nil {
				return err
			}
			l, err := svc.Ledger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(ledgerSummary(l))
			}

			fmt.Printf("user %s: level %d, %d xp (%d to next level)\n", l.UserID, l.Level, l.TotalXP, l.XPToNextLevel())
			fmt.Printf("tasks %d, workouts %d, longest streak %d\n", l.TasksCompleted, l.WorkoutsCompleted, l.LongestStreak)

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Category", "Level", "XP"})
			for _, c := range progress.Categories {
				tw.AppendRow(table.Row{c, l.CategoryLevel(c), l.Categories[c].XP})
			}
			tw.Render()

			if len(l.Achievements) > 0 {
				fmt.Println("achievements:", strings.Join(l.Achievements, ", "))
			}
			if len(l.PendingAchievements) > 0 {
				fmt.Println("pending:", strings.Join(l.PendingAchievements, ", "))
			}
			return nil
		},
	}
}

func ledgerRecomputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recompute [user-id]",
		Short: "Re-derive levels from stored XP (all users when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openMaintenance()
			if err != nil {
				return err
			}
			reports, err := svc.Recompute(cmd.Context(), optionalArg(args))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(reports)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"User", "Level", "Total XP", "History Sum", "Drift"})
			for _, r := range reports {
				tw.AppendRow(table.Row{r.UserID, r.Level, r.TotalXP, r.HistorySum, r.Drift})
			}
			tw.Render()
			return nil
		},
	}
}

func historyCompactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compact [user-id]",
		Short: "Fold XP transactions older than --older-than into a summary entry",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			age, err := parseAge(mustString(cmd, "older-than"))
			if err != nil {
				return err
			}
			svc, err := openMaintenance()
			if err != nil {
				return err
			}
			reports, err := svc.CompactHistory(cmd.Context(), optionalArg(args), age)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(reports)
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"User", "Folded", "Total XP"})
			for _, r := range reports {
				tw.AppendRow(table.Row{r.UserID, r.Folded, r.Total})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().String("older-than", "365d", "age of transactions to fold (e.g. 90d, 720h)")
	return cmd
}

func eventsPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete contract event records older than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := mustString(cmd, "older-than")
			if raw == "" {
				raw = strconv.Itoa(viper.GetInt("event-retention-days")) + "d"
			}
			age, err := parseAge(raw)
			if err != nil {
				return err
			}
			svc, err := openMaintenance()
			if err != nil {
				return err
			}
			n, err := svc.PurgeEvents(cmd.Context(), age)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"purged": n})
			}
			fmt.Printf("purged %d event records\n", n)
			return nil
		},
	}
	cmd.Flags().String("older-than", "", "retention window (defaults to --event-retention-days)")
	return cmd
}

type ledgerView struct {
	UserID            string         `json:"user_id"`
	Level             int            `json:"level"`
	TotalXP           int            `json:"total_xp"`
	XPToNextLevel     int            `json:"xp_to_next_level"`
	Categories        map[string]int `json:"category_xp"`
	LongestStreak     int            `json:"longest_streak"`
	TasksCompleted    int            `json:"tasks_completed"`
	WorkoutsCompleted int            `json:"workouts_completed"`
	Achievements      []string       `json:"achievements"`
	Pending           []string       `json:"pending_achievements"`
	HistoryEntries    int            `json:"history_entries"`
}

func ledgerSummary(l *progress.Ledger) ledgerView {
	cats := make(map[string]int, len(progress.Categories))
	for _, c := range progress.Categories {
		cats[string(c)] = l.Categories[c].XP
	}
	return ledgerView{
		UserID:            l.UserID,
		Level:             l.Level,
		TotalXP:           l.TotalXP,
		XPToNextLevel:     l.XPToNextLevel(),
		Categories:        cats,
		LongestStreak:     l.LongestStreak,
		TasksCompleted:    l.TasksCompleted,
		WorkoutsCompleted: l.WorkoutsCompleted,
		Achievements:      l.Achievements,
		Pending:           l.PendingAchievements,
		HistoryEntries:    len(l.History),
	}
}

// parseAge 支持 Go duration 以及以 "d" 结尾的天数
func parseAge(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid age %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid age %q", raw)
	}
	return d, nil
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return strings.TrimSpace(args[0])
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return strings.TrimSpace(v)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

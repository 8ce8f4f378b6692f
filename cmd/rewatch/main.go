package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "rewatch",
		Short:        "Score finished games for rewatchability and publish the best ones",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(runCmd())
	root.AddCommand(pollCmd())
	root.AddCommand(scoreCmd())
	root.AddCommand(gamesCmd())
	root.AddCommand(ledgerCmd())
	root.AddCommand(datasetCmd())
	root.AddCommand(calibrateCmd())
	root.AddCommand(serveCmd())

	return root
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with polling loop and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func pollCmd() *cobra.Command {
	var (
		date       string
		sports     []string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Run one polling cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoll(date, sports, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "game day to process, YYYY-MM-DD (default: current game day)")
	cmd.Flags().StringSliceVar(&sports, "sport", nil, "limit to these sports (e.g., nba,nfl)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func scoreCmd() *cobra.Command {
	var (
		sportKey string
		ei       float64
		eventID  string
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a raw EI, or fetch and score one event",
		RunE: func(cmd *cobra.Command, args []string) error {
			if eventID == "" && !cmd.Flags().Changed("ei") {
				return fmt.Errorf("one of --ei or --event is required")
			}
			return runScore(sportKey, ei, eventID)
		},
	}

	cmd.Flags().StringVar(&sportKey, "sport", "nba", "sport key")
	cmd.Flags().Float64Var(&ei, "ei", 0, "raw excitement index")
	cmd.Flags().StringVar(&eventID, "event", "", "ESPN event id to fetch and score")
	return cmd
}

func gamesCmd() *cobra.Command {
	var (
		jsonOutput bool
		sportKey   string
		date       string
		minScore   int
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "games",
		Short: "Show scored games from the history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGames(jsonOutput, sportKey, date, minScore, limit)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&sportKey, "sport", "", "filter by sport")
	cmd.Flags().StringVar(&date, "date", "", "filter by game day, YYYY-MM-DD")
	cmd.Flags().IntVar(&minScore, "min-score", 0, "minimum score")
	cmd.Flags().IntVar(&limit, "limit", 20, "max games to show")
	return cmd
}

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the delivery ledger",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List delivered event ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerList()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Drop entries older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerPrune()
		},
	})
	return cmd
}

func datasetCmd() *cobra.Command {
	var (
		sportKey string
		season   int
		from     string
		to       string
		out      string
		appendTo bool
	)

	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Build an EI CSV from historical games",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDataset(sportKey, season, from, to, out, appendTo)
		},
	}

	cmd.Flags().StringVar(&sportKey, "sport", "nba", "sport key")
	cmd.Flags().IntVar(&season, "season", 0, "season start year (alternative to --from/--to)")
	cmd.Flags().StringVar(&from, "from", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last date, YYYY-MM-DD")
	cmd.Flags().StringVar(&out, "out", "", "output CSV (default: ei_<sport>.csv)")
	cmd.Flags().BoolVar(&appendTo, "append", false, "append to an existing CSV, skipping known events")
	return cmd
}

func calibrateCmd() *cobra.Command {
	var sportKey string

	cmd := &cobra.Command{
		Use:   "calibrate <dataset.csv>...",
		Short: "Derive curve anchors from EI datasets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalibrate(args, sportKey)
		},
	}

	cmd.Flags().StringVar(&sportKey, "sport", "", "sport for rows that do not name one")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

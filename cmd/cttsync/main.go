package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cttsync/internal/config"
	"cttsync/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cttsync",
	Short: "cttsync - keep order tracking status in step with the CTT tracking page",
	Long: `cttsync reads orders from the order store, finds each order's CTT
tracking code, renders the public CTT tracking page in headless Chrome, reads
the shipment timeline off the page layout and writes the canonical status
back onto the order.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		cfg = loaded

		logger, err = logging.Init(cfg.Logging.Options(verbose))
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

// serveCmd runs the operational API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run/status HTTP API",
	Long: `Starts the HTTP API:
  GET   /health         liveness
  POST  /api/run        start a batch (?wait=true blocks for the summary)
  GET   /api/status     running flag and last run summary
  PATCH /api/orders     reconcile orders matching {orderId, tracking}
  GET   /api/runs       stored run summaries (history enabled)`,
	RunE: runServe,
}

// runCmd runs one batch in the foreground
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconcile every order once and print the run summary",
	RunE:  runBatch,
}

// patchCmd reconciles selected orders
var patchCmd = &cobra.Command{
	Use:   "patch",
	Short: "Reconcile the orders matching --order-id or --tracking",
	Example: `  cttsync patch --order-id 1042
  cttsync patch --tracking "RU 784-434-691 PT"`,
	RunE: runPatch,
}

// extractCmd shows what would be written for one tracking page
var extractCmd = &cobra.Command{
	Use:   "extract [code-or-url]",
	Short: "Render a tracking page and print its timeline and status",
	Long: `Renders the tracking page for a code (or a full URL) and prints the
extracted timeline and canonical status without touching any order.

With --snapshot the page is read from a snapshot file instead of rendered;
--save writes the captured snapshot for later replay.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

// statusCmd shows stored runs
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last stored run summaries",
	RunE:  showStatus,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Operation timeout")

	addPatchFlags(patchCmd)
	addExtractFlags(extractCmd)
	addStatusFlags(statusCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(patchCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(statusCmd)
}

func addPatchFlags(cmd *cobra.Command) {
	cmd.Flags().String("order-id", "", "Order id to reconcile")
	cmd.Flags().String("tracking", "", "Tracking code to reconcile")
}

func addExtractFlags(cmd *cobra.Command) {
	cmd.Flags().String("snapshot", "", "Read the page from a snapshot file")
	cmd.Flags().String("save", "", "Write the rendered snapshot to a file")
}

func addStatusFlags(cmd *cobra.Command) {
	cmd.Flags().Int("limit", 1, "Number of runs to show")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

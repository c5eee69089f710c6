package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/veil-waf/veil-detect/internal/config"
	"github.com/veil-waf/veil-detect/internal/detect"
	"github.com/veil-waf/veil-detect/internal/server"
)

// errAttackFound is returned by classify --fail-on-attack.
var errAttackFound = errors.New("attack detected")

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "wafctl",
		Short:         "Offline tooling for the Veil detection engine.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level for engine diagnostics (written to stderr)")
	root.PersistentFlags().String("rules", "", "path to a rule document (defaults apply when empty)")

	root.AddCommand(newClassifyCmd(), newRulesCmd())
	return root
}

// loadRules resolves --rules. An unreadable or non-object document is fatal
// here; per-field warnings are printed and the document is still used.
func loadRules(cmd *cobra.Command) (detect.Config, error) {
	path, _ := cmd.Flags().GetString("rules")
	if path == "" {
		return detect.DefaultConfig(), nil
	}
	cfg, err := config.LoadRules(path)
	if err == nil {
		return cfg, nil
	}
	var pathErr *os.PathError
	if errors.Is(err, config.ErrInvalidDocument) || errors.As(err, &pathErr) {
		return cfg, fmt.Errorf("load rules: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	return cfg, nil
}

func newClassifyCmd() *cobra.Command {
	var (
		block        bool
		failOnAttack bool
	)
	cmd := &cobra.Command{
		Use:   "classify [file]",
		Short: "Classify request descriptors read from a file or stdin.",
		Long: `Reads a JSON request descriptor, or an array of them, and prints one
verdict per line. Descriptors share one engine, so repeated login attempts
within a batch count towards brute-force detection.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRules(cmd)
			if err != nil {
				return err
			}
			if block {
				cfg.Mode = detect.ModeBlock
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			data, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			reqs, err := detect.DecodeRequests(data)
			if err != nil {
				return err
			}

			level, _ := cmd.Flags().GetString("log-level")
			engine := detect.New(cfg, detect.WithLogger(server.NewLogger(cmd.ErrOrStderr(), level, "text")))

			enc := json.NewEncoder(cmd.OutOrStdout())
			attacks := 0
			for _, req := range reqs {
				v := engine.Classify(req)
				if v.IsAttack {
					attacks++
				}
				if err := enc.Encode(v); err != nil {
					return err
				}
			}
			if failOnAttack && attacks > 0 {
				return fmt.Errorf("%w in %d of %d descriptors", errAttackFound, attacks, len(reqs))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&block, "block", false, "force BLOCK mode regardless of the rule document")
	cmd.Flags().BoolVar(&failOnAttack, "fail-on-attack", false, "exit non-zero when any descriptor is an attack")
	return cmd
}

type rulesOutput struct {
	Mode                    detect.Mode                  `json:"mode"`
	BruteForceWindowSeconds int                          `json:"brute_force_window_seconds"`
	BruteForceThreshold     int                          `json:"brute_force_threshold"`
	DetectorOrder           []detect.AttackType          `json:"detector_order"`
	Patterns                map[detect.Category][]string `json:"patterns"`
}

func newRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the effective rule configuration.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadRules(cmd)
			if err != nil {
				return err
			}
			engine := detect.New(cfg)
			eff := engine.Config()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rulesOutput{
				Mode:                    eff.Mode,
				BruteForceWindowSeconds: int(eff.BruteForceWindow.Seconds()),
				BruteForceThreshold:     eff.BruteForceThreshold,
				DetectorOrder:           engine.Order(),
				Patterns:                eff.Rules.Map(),
			})
		},
	}
}

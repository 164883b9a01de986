package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/claimaudit/pkg/audit"
	"mercator-hq/claimaudit/pkg/cli"
	"mercator-hq/claimaudit/pkg/engine"
)

var rulesFlags struct {
	dataType    string
	catalogFile string
	all         bool
	format      string
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the rules of the configured catalog",
	Long: `List the rules of the configured catalog in evaluation order.

By default only the active rules that apply to the given record type are
listed. Use --all to include inactive rules and rules for other record types.

Examples:
  # Rules that run against claims
  claimaudit rules --type claim

  # Every rule of a catalog file, as CSV
  claimaudit rules --catalog rules.yaml --all --format csv`,
	RunE: listRules,
}

func init() {
	rootCmd.AddCommand(rulesCmd)

	rulesCmd.Flags().StringVarP(&rulesFlags.dataType, "type", "t", "", "record type: claim or preauth (default from config)")
	rulesCmd.Flags().StringVar(&rulesFlags.catalogFile, "catalog", "", "catalog file to use instead of the configured source")
	rulesCmd.Flags().BoolVar(&rulesFlags.all, "all", false, "include inactive and non-applicable rules")
	rulesCmd.Flags().StringVar(&rulesFlags.format, "format", "text", "output format: text, json, csv")
}

// ruleInfo describes one registered rule.
type ruleInfo struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Active   bool   `json:"active"`
	CaseType string `json:"case_type"`
	Scope    string `json:"scope,omitempty"`
	Review   string `json:"review_req"`
	Shape    string `json:"shape"`
}

type ruleList struct {
	Catalog string     `json:"catalog"`
	Version string     `json:"version"`
	Rules   []ruleInfo `json:"rules"`
}

func (l ruleList) Header() []string {
	return []string{"key", "name", "active", "case_type", "review", "shape"}
}

func (l ruleList) Rows() [][]string {
	rows := make([][]string, len(l.Rules))
	for i, r := range l.Rules {
		rows[i] = []string{r.Key, r.Name, strconv.FormatBool(r.Active), r.CaseType, r.Review, r.Shape}
	}
	return rows
}

func listRules(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(rulesFlags.format)
	if err != nil {
		return cli.NewConfigError("--format", err.Error())
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if rulesFlags.catalogFile != "" {
		cfg.Catalog.Mode = "file"
		cfg.Catalog.FilePath = rulesFlags.catalogFile
	}
	dataType := cfg.Audit.DataType
	if rulesFlags.dataType != "" {
		dataType = rulesFlags.dataType
	}
	dt, err := audit.ParseDataType(dataType)
	if err != nil {
		return cli.NewConfigError("--type", err.Error())
	}
	logger, err := setupLogger(cfg)
	if err != nil {
		return err
	}

	cat, _, err := loadCatalog(commandContext(cmd), &cfg.Catalog)
	if err != nil {
		return cli.NewCommandError("rules", fmt.Errorf("failed to load catalog: %w", err))
	}
	reg, err := buildRegistry(cat, cfg.Catalog.Strict, logger)
	if err != nil {
		return cli.NewCommandError("rules", err)
	}

	entries := reg.Applicable(dt.CaseType())
	if rulesFlags.all {
		entries = reg.Entries()
	}
	list := ruleList{Catalog: reg.Source(), Version: reg.Version(), Rules: make([]ruleInfo, 0, len(entries))}
	for _, e := range entries {
		list.Rules = append(list.Rules, describeEntry(e))
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), list)
}

func describeEntry(e *engine.Entry) ruleInfo {
	return ruleInfo{
		Key:      e.Key,
		Name:     e.Name,
		Active:   e.Active,
		CaseType: string(e.CaseType),
		Scope:    e.Scope,
		Review:   string(e.ReviewReq),
		Shape:    string(e.Shape),
	}
}

package main

import (
	"cmp"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/compstack/internal/adapter/output"
	"github.com/jmylchreest/compstack/internal/core"
	"github.com/jmylchreest/compstack/internal/model"
)

var getOpts struct {
	// Filter options
	since    string
	strategy string
	failed   bool
	filter   string
	search   string
	surface  string
	limit    int

	// Sort options
	sortBy    string
	sortOrder string

	// Output options
	format   string
	field    string
	template string
	ops      bool
	decimal  bool

	// Lookup options
	index int
	id    string
}

var getCmd = &cobra.Command{
	Use:     "get [index|id]",
	Aliases: []string{"journal"},
	Short:   "Query the pass journal",
	Long: `Query the daemon's pass journal and output passes in various formats.

Without arguments, lists the passes from the configured time window, newest
first.

With an index (1-based) or pass ID argument, outputs that specific pass.

Filter expressions combine conditions with commas:
  strategy=aggressive  ops>=3  failed=true  surface=0x1a00003  timestamp<1h

Examples:
  # Passes from the last hour
  compstack get --since 1h

  # Failed passes only
  compstack get --failed

  # Every pass that moved a surface, oldest first
  compstack get --surface 0x1a00003

  # Passes that needed many requests, as JSON
  compstack get --filter "ops>5" --format json

  # Restack requests of the third pass
  compstack get 3 --field ops

  # One line per pass, for dmenu-style pickers
  compstack get --format line | fuzzel -d | compstack get --field result`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)

	// Filter flags
	getCmd.Flags().StringVar(&getOpts.since, "since", "",
		"Show passes from the last duration (e.g., 1h, 7d, 1w; 0 = all; default from config)")
	getCmd.Flags().StringVar(&getOpts.strategy, "strategy", "",
		"Filter by planner strategy (none, conservative, aggressive)")
	getCmd.Flags().BoolVar(&getOpts.failed, "failed", false,
		"Show failed passes only")
	getCmd.Flags().StringVar(&getOpts.filter, "filter", "",
		"Filter expression (e.g., \"ops>2,trigger=timer\")")
	getCmd.Flags().StringVarP(&getOpts.search, "search", "s", "",
		"Search in triggers and errors")
	getCmd.Flags().StringVar(&getOpts.surface, "surface", "",
		"Show the passes that moved a surface, oldest first")
	getCmd.Flags().IntVarP(&getOpts.limit, "limit", "n", 0,
		"Maximum number of passes to show (0=unlimited)")

	// Sort flags
	getCmd.Flags().StringVar(&getOpts.sortBy, "sort", "",
		"Sort by field (timestamp, ops, duration, strategy)")
	getCmd.Flags().StringVar(&getOpts.sortOrder, "order", "",
		"Sort order (asc, desc)")

	// Output flags
	getCmd.Flags().StringVarP(&getOpts.format, "format", "f", "",
		"Output format (plain, line, json, yaml, ids)")
	getCmd.Flags().StringVar(&getOpts.field, "field", "",
		"Output one field per pass (id, trigger, strategy, desired, result, dropped, direct, ops, error, compositing, duration)")
	getCmd.Flags().StringVar(&getOpts.template, "template", "",
		"Custom Go template for line output")
	getCmd.Flags().BoolVar(&getOpts.ops, "ops", false,
		"List restack requests in plain output")
	getCmd.Flags().BoolVar(&getOpts.decimal, "decimal", false,
		"Print surface ids in decimal")

	// Lookup flags
	getCmd.Flags().IntVar(&getOpts.index, "index", 0,
		"Lookup pass by 1-based index")
	getCmd.Flags().StringVar(&getOpts.id, "id", "",
		"Lookup pass by ID")
}

func runGet(cmd *cobra.Command, args []string) error {
	// Check for positional argument (index or ID)
	if len(args) > 0 {
		arg := parseLineSelection(args[0])
		if idx, err := strconv.Atoi(arg); err == nil && idx > 0 {
			getOpts.index = idx
		} else {
			getOpts.id = arg
		}
	}

	journal, err := openJournal()
	if err != nil {
		return err
	}
	passes := journal.All()
	logger.Debug("loaded journal", "path", journalPath(), "count", len(passes))

	// If looking up a specific pass
	if getOpts.index > 0 || getOpts.id != "" {
		return handleLookup(passes)
	}

	passes, err = applyFilters(passes)
	if err != nil {
		return err
	}

	return outputPasses(passes)
}

// applyFilters applies the filter flags, then sorts. A surface history is
// always oldest first.
func applyFilters(passes []model.Pass) ([]model.Pass, error) {
	opts := core.FilterOptions{}

	since := getOpts.since
	if since == "" && cfg != nil {
		since = cfg.Filter.Since
	}
	if since != "" {
		d, err := core.ParseDuration(since)
		if err != nil {
			return nil, fmt.Errorf("invalid since duration: %w", err)
		}
		opts.Since = d
	}

	if getOpts.strategy != "" {
		s, err := core.ParseStrategy(getOpts.strategy)
		if err != nil {
			return nil, err
		}
		opts.Strategy = s
	}

	if getOpts.failed {
		failed := true
		opts.Failed = &failed
	}

	passes = core.Filter(passes, opts)

	if getOpts.filter != "" {
		expr, err := core.ParseFilter(getOpts.filter)
		if err != nil {
			return nil, fmt.Errorf("invalid filter: %w", err)
		}
		passes = core.FilterWithExpr(passes, expr)
	}

	if getOpts.search != "" {
		passes = core.Search(passes, getOpts.search)
	}

	if getOpts.surface != "" {
		id, err := model.ParseSurfaceID(getOpts.surface)
		if err != nil {
			return nil, err
		}
		passes = core.SurfaceHistory(passes, id)
	} else if err := applySort(passes); err != nil {
		return nil, err
	}

	limit := getOpts.limit
	if limit == 0 && cfg != nil {
		limit = cfg.Filter.Limit
	}
	if limit > 0 && len(passes) > limit {
		passes = passes[:limit]
	}

	return passes, nil
}

// applySort sorts passes based on flags, then config.
func applySort(passes []model.Pass) error {
	sortBy, sortOrder := getOpts.sortBy, getOpts.sortOrder
	if cfg != nil {
		sortBy = cmp.Or(sortBy, cfg.Sort.Field)
		sortOrder = cmp.Or(sortOrder, cfg.Sort.Order)
	}

	field, err := core.ParseSortField(sortBy)
	if err != nil {
		return err
	}
	order, err := core.ParseSortOrder(sortOrder)
	if err != nil {
		return err
	}
	core.Sort(passes, core.SortOptions{Field: field, Order: order})
	return nil
}

// handleLookup handles single pass lookup and output.
func handleLookup(passes []model.Pass) error {
	var p *model.Pass

	if getOpts.index > 0 {
		// Index into the same list a plain listing would show
		filtered, err := applyFilters(passes)
		if err != nil {
			return err
		}
		p = core.LookupByIndex(filtered, getOpts.index)
		if p == nil {
			return fmt.Errorf("pass at index %d not found", getOpts.index)
		}
	} else {
		p = core.LookupByID(passes, getOpts.id)
		if p == nil {
			return fmt.Errorf("pass with ID %s not found", getOpts.id)
		}
	}

	// Output specific field if requested
	if getOpts.field != "" {
		fmt.Println(output.FormatField(p, getOpts.field, useDecimal(getOpts.decimal)))
		return nil
	}

	// A single pass defaults to the full plain view with requests
	if getOpts.format == "" {
		getOpts.format = string(output.FormatPlain)
		getOpts.ops = true
	}

	formatter := createFormatter()
	return formatter.Format(os.Stdout, []model.Pass{*p})
}

// parseLineSelection extracts the index from a line format selection.
// Input could be the full line: "3 | 5m | timer | conservative 2 ops | 0x1 0x2"
// or just an ID/index.
func parseLineSelection(selection string) string {
	selection = strings.TrimSpace(selection)

	// If it looks like a raw ID (alphanumeric), return as-is
	if !strings.Contains(selection, " ") && !strings.Contains(selection, "|") {
		return selection
	}

	parts := strings.SplitN(selection, "|", 2)
	idxStr := strings.TrimSpace(parts[0])
	if idx, err := strconv.Atoi(idxStr); err == nil && idx > 0 {
		return idxStr
	}

	return selection
}

// outputPasses outputs the pass list.
func outputPasses(passes []model.Pass) error {
	if len(passes) == 0 {
		logger.Debug("no passes to output")
		return nil
	}

	formatter := createFormatter()
	return formatter.Format(os.Stdout, passes)
}

// createFormatter creates the output formatter based on options.
func createFormatter() output.Formatter {
	format := getOpts.format
	if format == "" && getOpts.field != "" {
		format = string(output.FormatIDs)
	}
	if format == "" && cfg != nil {
		format = cfg.Output.Format
	}

	opts := output.DefaultFormatterOptions()
	opts.Template = getOpts.template
	if opts.Template == "" && cfg != nil && parseFormat(format) == output.FormatLine {
		opts.Template = cfg.Output.Line
	}
	opts.ShowOps = getOpts.ops
	opts.OutputField = getOpts.field
	opts.Decimal = useDecimal(getOpts.decimal)

	return output.NewFormatter(parseFormat(format), opts)
}

// parseFormat maps a format flag to an output format.
func parseFormat(s string) output.FormatType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return output.FormatJSON
	case "yaml", "yml":
		return output.FormatYAML
	case "line", "dmenu":
		return output.FormatLine
	case "ids":
		return output.FormatIDs
	default:
		return output.FormatPlain
	}
}

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
)

var rmOpts struct {
	// Input options
	stdin     bool // Read IDs from stdin
	stdinJSON bool // Parse stdin as JSON and extract id
}

var rmCmd = &cobra.Command{
	Use:   "rm [id...]",
	Short: "Delete passes from the journal",
	Long: `Delete passes from the pass journal by ID.

Arguments may be full IDs or unambiguous ID prefixes. With --stdin each
line is scanned for a ULID; with --stdin-json the id fields are used.

Examples:
  # Delete a specific pass, by full ID or prefix
  compstack rm 01HZ3X2J5YFMK2V3P4Q6R7S8T9
  compstack rm 01HZ3X2J

  # Delete every failed pass
  compstack get --failed --since 0 --format ids | compstack rm --stdin

  # Delete from JSON output
  compstack get --filter "resynced=true" --format json | compstack rm --stdin-json`,
	RunE: runRm,
}

func init() {
	rootCmd.AddCommand(rmCmd)

	rmCmd.Flags().BoolVar(&rmOpts.stdin, "stdin", false,
		"Read IDs from stdin (one per line, or scans for ULID pattern)")
	rmCmd.Flags().BoolVar(&rmOpts.stdinJSON, "stdin-json", false,
		"Read JSON from stdin and extract the id field")
}

func runRm(cmd *cobra.Command, args []string) error {
	// Collect IDs
	ids := args

	if rmOpts.stdin || rmOpts.stdinJSON {
		stdinIDs, err := readIDs(os.Stdin, rmOpts.stdinJSON)
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
		ids = append(ids, stdinIDs...)
	}

	if len(ids) == 0 {
		return fmt.Errorf("no pass IDs provided")
	}

	ids = uniqueStrings(ids)

	journal, err := openJournal()
	if err != nil {
		return err
	}

	var missing int
	resolved := make([]string, 0, len(ids))
	for _, id := range ids {
		p := journal.Lookup(id)
		if p == nil {
			logger.Warn("pass not found or prefix ambiguous", "id", id)
			missing++
			continue
		}
		resolved = append(resolved, p.ID)
	}

	deleted, err := journal.Delete(resolved...)
	if err != nil {
		return fmt.Errorf("failed to delete passes: %w", err)
	}

	if missing > 0 {
		fmt.Fprintf(os.Stderr, "deleted %d passes, %d not found\n", deleted, missing)
	} else {
		fmt.Printf("deleted %d passes\n", deleted)
	}

	return nil
}

// readIDs reads pass IDs from r, either scanning lines for ULIDs or
// decoding JSON.
func readIDs(r io.Reader, asJSON bool) ([]string, error) {
	scanner := bufio.NewScanner(r)

	if asJSON {
		return readJSONIDs(scanner)
	}

	var ids []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if id := extractULID(line); id != "" {
			ids = append(ids, id)
		}
	}

	return ids, scanner.Err()
}

// ULID regex pattern: 26 characters, alphanumeric (0-9, A-Z excluding I, L, O, U)
var ulidPattern = regexp.MustCompile(`\b[0-9A-HJKMNP-TV-Z]{26}\b`)

// extractULID attempts to extract a ULID from a line.
// Handles:
//   - Bare ULID: "01HZ3X2J5YFMK2V3P4Q6R7S8T9"
//   - Plain output: "[1] 01HZ3X2J5YFMK2V3P4Q6R7S8T9 timer (none, 0 ops) now"
//   - Any line containing a ULID pattern
func extractULID(line string) string {
	return ulidPattern.FindString(strings.TrimSpace(line))
}

// readJSONIDs parses JSON and extracts id fields. It accepts an array of
// passes or newline-delimited passes.
func readJSONIDs(scanner *bufio.Scanner) ([]string, error) {
	var ids []string

	var content strings.Builder
	for scanner.Scan() {
		content.WriteString(scanner.Text())
		content.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(content.String())
	if text == "" {
		return nil, nil
	}

	if strings.HasPrefix(text, "[") {
		var items []map[string]any
		if err := json.Unmarshal([]byte(text), &items); err == nil {
			for _, item := range items {
				if id, ok := item["id"].(string); ok && id != "" {
					ids = append(ids, id)
				}
			}
			return ids, nil
		}
	}

	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var item map[string]any
		if err := json.Unmarshal([]byte(line), &item); err == nil {
			if id, ok := item["id"].(string); ok && id != "" {
				ids = append(ids, id)
			}
		}
	}

	return ids, nil
}

// uniqueStrings removes duplicates from a string slice.
func uniqueStrings(input []string) []string {
	seen := make(map[string]struct{})
	result := make([]string, 0, len(input))
	for _, s := range input {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			result = append(result, s)
		}
	}
	return result
}

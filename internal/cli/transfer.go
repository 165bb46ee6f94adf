package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/coffersTech/logvault/internal/archive"
	"github.com/coffersTech/logvault/internal/model"
	"github.com/spf13/cobra"
)

const snapshotExt = ".lvz"

func newExportCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write every record to a file",
		Long: `Write every record to a file. A .lvz extension produces a compressed
snapshot; anything else produces a pretty-printed JSON array.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := root.openStore()
			if err != nil {
				return err
			}
			records, err := store.ReadAll()
			if err != nil {
				return err
			}
			if err := writeRecords(args[0], records); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d records to %s\n", len(records), args[0])
			return nil
		},
	}
}

func newImportCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Merge records from an export or archive snapshot",
		Long: `Merge records from a JSON export or a .lvz snapshot into the record file.
Ids and timestamps are kept; records whose id already exists are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := root.openStore()
			if err != nil {
				return err
			}
			records, err := readRecords(args[0])
			if err != nil {
				return err
			}
			for i := range records {
				if !records[i].Level.Valid() || records[i].Message == "" {
					return fmt.Errorf("%s: record %d (%s) is not a valid log", args[0], i, records[i].ID)
				}
			}
			res, err := store.Restore(records)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d records, skipped %d, total %d\n", res.Restored, res.Skipped, res.Total)
			return nil
		},
	}
}

func writeRecords(path string, records []model.LogRecord) error {
	if strings.EqualFold(filepath.Ext(path), snapshotExt) {
		w, err := archive.NewWriter()
		if err != nil {
			return err
		}
		return w.WriteSnapshot(path, records)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func readRecords(path string) ([]model.LogRecord, error) {
	if strings.EqualFold(filepath.Ext(path), snapshotExt) {
		r, err := archive.NewReader()
		if err != nil {
			return nil, err
		}
		return r.ReadSnapshot(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []model.LogRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return records, nil
}

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/quartzledger/quartz/dispatch"
	"github.com/quartzledger/quartz/keyvaluedb/boltdb"
	"github.com/quartzledger/quartz/throttle"
	"github.com/quartzledger/quartz/types"
)

// newStateCmd creates the command inspecting a node's state database: the
// last handled consensus time and the persisted throttle usage.
func newStateCmd(baseConfig *baseConfiguration) *cobra.Command {
	var dbFile string
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect the node's state database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbFile == "" {
				dbFile = filepath.Join(baseConfig.HomeDir, "state.db")
			}
			db, err := boltdb.New(dbFile)
			if err != nil {
				return fmt.Errorf("opening state database: %w", err)
			}
			defer func() { _ = db.Close() }()

			report := stateReport{}
			var lastHandled types.Timestamp
			found, err := db.Read(dispatch.LastHandledTimeKey, &lastHandled)
			if err != nil {
				return fmt.Errorf("reading last handled time: %w", err)
			}
			if found {
				report.LastHandledTime = lastHandled.String()
			}

			var snap throttle.Snapshot
			if found, err = db.Read(throttle.SnapshotKey, &snap); err != nil {
				return fmt.Errorf("reading throttle snapshot: %w", err)
			}
			if found {
				report.Throttles = &snap
			}

			out, err := yaml.Marshal(report)
			if err != nil {
				return fmt.Errorf("encoding report: %w", err)
			}
			cmd.Print(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&dbFile, "db", "", "state database file (default is $QUARTZ_HOME/state.db)")
	return cmd
}

type stateReport struct {
	LastHandledTime string             `yaml:"lastHandledTime,omitempty"`
	Throttles       *throttle.Snapshot `yaml:"throttles,omitempty"`
}

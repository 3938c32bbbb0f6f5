package cli

import (
	"github.com/danpasecinic/podfleet/internal/state"
	"github.com/spf13/cobra"
)

var (
	getNamespace string
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Show nodes, pods or deployments",
	Long: `Refresh the cluster state from every node and list what it reports.

An optional NAME argument limits the output to one object.`,
}

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.PersistentFlags().StringVarP(&getNamespace, "namespace", "n", "", "only show objects in this namespace")
}

// refreshedSnapshot opens a session and returns a fresh snapshot of the cluster
func refreshedSnapshot(cmd *cobra.Command) (*state.Snapshot, error) {
	s, err := openSession(cmd)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	return s.refresh(cmd.Context())
}

// nameArg returns the optional NAME argument
func nameArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

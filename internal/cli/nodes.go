package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/danpasecinic/podfleet/internal/state"
	"github.com/danpasecinic/podfleet/internal/types"
	"github.com/spf13/cobra"
)

var nodesCmd = &cobra.Command{
	Use:     "nodes [NAME]",
	Aliases: []string{"node", "no"},
	Short:   "List nodes",
	Long:    `List the nodes of the cluster with their health, load and capacity.`,
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshot, err := refreshedSnapshot(cmd)
		if err != nil {
			return err
		}

		nodes := listNodes(snapshot, nameArg(args))
		if len(nodes) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No nodes found.")
			return nil
		}

		printNodes(cmd.OutOrStdout(), nodes)

		if IsVerbose() {
			_, _ = fmt.Fprintf(
				cmd.OutOrStdout(), "\nTotal nodes: %d (%d healthy)\n", snapshot.Len(), snapshot.HealthyCount(),
			)
		}
		return nil
	},
}

func init() {
	getCmd.AddCommand(nodesCmd)
}

func listNodes(snapshot *state.Snapshot, name string) []types.NodeState {
	var out []types.NodeState
	for _, node := range snapshot.Nodes() {
		if name != "" && node.Name != name {
			continue
		}
		out = append(out, node)
	}
	return out
}

func printNodes(out io.Writer, nodes []types.NodeState) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprint(w, "NAME\tSTATUS\tPODS\tCPUS\tMEMORY\tPLATFORM\n")

	for _, node := range nodes {
		cpuStr := "N/A"
		memoryStr := "N/A"
		platformStr := "N/A"
		if node.Info != nil {
			cpuStr = fmt.Sprintf("%d", node.Info.NumCPUs)
			memoryStr = types.FormatMiB(node.Info.UsedMemoryMiB) + "/" + types.FormatMiB(node.Info.TotalMemoryMiB)
			platformStr = node.Info.Platform.OS + "/" + node.Info.Platform.Arch
		}

		_, _ = fmt.Fprintf(
			w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			node.Name,
			node.Health,
			node.Load(),
			cpuStr,
			memoryStr,
			platformStr,
		)
	}

	_ = w.Flush()
}

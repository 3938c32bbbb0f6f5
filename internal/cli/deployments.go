package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/danpasecinic/podfleet/internal/state"
	"github.com/danpasecinic/podfleet/internal/types"
	"github.com/spf13/cobra"
)

var deploymentsCmd = &cobra.Command{
	Use:     "deployments [NAME]",
	Aliases: []string{"deployment", "deploy"},
	Short:   "List deployments",
	Long:    `List deployments assembled from the replicas every node reports.`,
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshot, err := refreshedSnapshot(cmd)
		if err != nil {
			return err
		}

		deployments := listDeployments(snapshot, getNamespace, nameArg(args))
		if len(deployments) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No deployments found.")
			return nil
		}

		printDeployments(cmd.OutOrStdout(), deployments, time.Now())
		return nil
	},
}

func init() {
	getCmd.AddCommand(deploymentsCmd)
}

// deploymentRow summarizes the replicas of one deployment across nodes
type deploymentRow struct {
	Name     types.NamespacedName
	Replicas int
	Running  int
	Nodes    []string
	Created  time.Time
}

// listDeployments groups pod instances by deployment label, sorted by
// namespace then name. Pods without the label are ignored.
func listDeployments(snapshot *state.Snapshot, namespace, name string) []deploymentRow {
	index := make(map[types.NamespacedName]*deploymentRow)
	for _, node := range snapshot.Nodes() {
		if node.Info == nil {
			continue
		}
		for _, pod := range node.Info.Pods {
			deployment := pod.Deployment()
			if deployment == "" {
				continue
			}
			if namespace != "" && pod.Namespace() != namespace {
				continue
			}
			if name != "" && deployment != name {
				continue
			}

			key := types.NamespacedName{Name: deployment, Namespace: pod.Namespace()}
			row, ok := index[key]
			if !ok {
				row = &deploymentRow{Name: key}
				index[key] = row
			}
			row.Replicas++
			if pod.Status == types.PodInstanceRunning {
				row.Running++
			}
			if len(row.Nodes) == 0 || row.Nodes[len(row.Nodes)-1] != node.Name {
				row.Nodes = append(row.Nodes, node.Name)
			}
			if row.Created.IsZero() || pod.Created.Before(row.Created) {
				row.Created = pod.Created
			}
		}
	}

	rows := make([]deploymentRow, 0, len(index))
	for _, row := range index {
		rows = append(rows, *row)
	}
	sort.Slice(
		rows, func(i, j int) bool {
			if rows[i].Name.Namespace != rows[j].Name.Namespace {
				return rows[i].Name.Namespace < rows[j].Name.Namespace
			}
			return rows[i].Name.Name < rows[j].Name.Name
		},
	)
	return rows
}

func printDeployments(out io.Writer, rows []deploymentRow, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprint(w, "NAMESPACE\tNAME\tREADY\tUP-TO-DATE\tAVAILABLE\tNODES\tAGE\n")

	for _, row := range rows {
		_, _ = fmt.Fprintf(
			w, "%s\t%s\t%d/%d\t%d\t%d\t%d\t%s\n",
			row.Name.Namespace,
			row.Name.Name,
			row.Running,
			row.Replicas,
			row.Replicas,
			row.Running,
			len(row.Nodes),
			formatAge(now, row.Created),
		)
	}

	_ = w.Flush()
}

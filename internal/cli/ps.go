package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/danpasecinic/podfleet/internal/state"
	"github.com/danpasecinic/podfleet/internal/types"
	"github.com/spf13/cobra"
)

// containerRunning is the container state agents report for a running container
const containerRunning = "running"

var podsCmd = &cobra.Command{
	Use:     "pods [NAME|ID]",
	Aliases: []string{"pod", "po", "ps"},
	Short:   "List pod instances",
	Long:    `List the pod instances reported by every node, standalone and deployment replicas alike.`,
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snapshot, err := refreshedSnapshot(cmd)
		if err != nil {
			return err
		}

		pods := listPods(snapshot, getNamespace, nameArg(args))
		if len(pods) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No pods found.")
			return nil
		}

		printPods(cmd.OutOrStdout(), pods, time.Now())
		return nil
	},
}

func init() {
	getCmd.AddCommand(podsCmd)
}

// podRow is one pod instance and the node reporting it
type podRow struct {
	Node string
	Pod  types.PodInstance
}

// listPods returns the pods matching the namespace and the name or id, in
// snapshot order. Empty filters match everything.
func listPods(snapshot *state.Snapshot, namespace, name string) []podRow {
	var rows []podRow
	for _, node := range snapshot.Nodes() {
		if node.Info == nil {
			continue
		}
		for _, pod := range node.Info.Pods {
			if namespace != "" && pod.Namespace() != namespace {
				continue
			}
			if name != "" && pod.Name != name && pod.ID != name {
				continue
			}
			rows = append(rows, podRow{Node: node.Name, Pod: pod})
		}
	}
	return rows
}

func printPods(out io.Writer, rows []podRow, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprint(w, "NAMESPACE\tNAME\tNODE\tREADY\tSTATUS\tRESTARTS\tAGE\n")

	for _, row := range rows {
		ready, restarts := 0, 0
		for _, c := range row.Pod.Containers {
			if c.Status == containerRunning {
				ready++
			}
			restarts += c.RestartCount
		}

		_, _ = fmt.Fprintf(
			w, "%s\t%s\t%s\t%d/%d\t%s\t%d\t%s\n",
			row.Pod.Namespace(),
			row.Pod.Name,
			row.Node,
			ready,
			len(row.Pod.Containers),
			row.Pod.Status,
			restarts,
			formatAge(now, row.Pod.Created),
		)
	}

	_ = w.Flush()
}

func formatAge(now, created time.Time) string {
	if created.IsZero() {
		return "-"
	}
	return formatDuration(now.Sub(created))
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

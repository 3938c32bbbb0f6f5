package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/danpasecinic/podfleet/internal/fleet"
	"github.com/danpasecinic/podfleet/internal/scheduler"
	"github.com/danpasecinic/podfleet/internal/state"
	"github.com/danpasecinic/podfleet/internal/types"
	"github.com/spf13/cobra"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

var (
	deleteNamespace string
)

var deleteCmd = &cobra.Command{
	Use:   "delete (pod|deployment) NAME",
	Short: "Delete a pod or deployment",
	Long: `Remove a pod or every replica of a deployment from the nodes it runs on.

Deleting something that is not running is not an error.`,
	Example: `  podfleet delete pod web -n default
  podfleet delete deployment api`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := resourceRef(args[0], args[1], deleteNamespace)
		if err != nil {
			return err
		}

		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		snapshot, err := s.refresh(cmd.Context())
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), s.cfg.DispatchTimeout)
		defer cancel()

		return deleteResource(ctx, cmd.OutOrStdout(), s.fleet, snapshot, res)
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().StringVarP(&deleteNamespace, "namespace", "n", "default", "namespace of the resource")
}

// resourceRef builds a resource carrying only the identity to delete
func resourceRef(kind, name, namespace string) (types.Resource, error) {
	meta := metav1.ObjectMeta{Name: name, Namespace: namespace}
	switch strings.ToLower(kind) {
	case "pod", "pods", "po":
		return types.NewPodResource(&corev1.Pod{ObjectMeta: meta}), nil
	case "deployment", "deployments", "deploy":
		return types.NewDeploymentResource(&appsv1.Deployment{ObjectMeta: meta}), nil
	default:
		return types.Resource{}, fmt.Errorf("%w: %s", scheduler.ErrUnknownKind, kind)
	}
}

// deleteResource removes res from every node that reports it
func deleteResource(
	ctx context.Context, out io.Writer, f fleet.Fleet, snapshot *state.Snapshot, res types.Resource,
) error {
	id := res.Identity()
	located := scheduler.Locate(snapshot, res)
	if located == nil {
		_, _ = fmt.Fprintf(out, "%s/%s not found\n", strings.ToLower(string(id.Kind)), res.NamespacedName())
		return nil
	}

	for _, node := range located.Nodes {
		ch, ok := f.Find(node.Name)
		if !ok {
			return fmt.Errorf("%w %s", scheduler.ErrNoChannel, node.Name)
		}
		if err := ch.RemoveResource(ctx, id); err != nil {
			return fmt.Errorf("failed to delete %s on %s: %w", id, node.Name, err)
		}
		_, _ = fmt.Fprintf(
			out, "%s/%s deleted from %s\n", strings.ToLower(string(id.Kind)), res.NamespacedName(), node.Name,
		)
	}
	return nil
}

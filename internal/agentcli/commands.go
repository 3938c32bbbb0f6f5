package agentcli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/danpasecinic/podfleet/internal/agent"
	"github.com/danpasecinic/podfleet/internal/types"
	"github.com/spf13/cobra"
)

var (
	applyFile       string
	removeKind      string
	removeName      string
	removeNamespace string
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply one pod or deployment manifest on this node",
	Long: `Start the containers of a pod or deployment, replacing any already running
for it. Progress notes go to stderr. On failure stderr holds the reason and the
exit status is non-zero.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readInput(cmd, applyFile)
		if err != nil {
			return err
		}

		logger, err := newLogger("error")
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		a, release, err := newAgent(cmd.Context(), logger, nil)
		if err != nil {
			return err
		}
		defer release()

		stdout, stderr, err := a.Apply(cmd.Context(), text)
		if err != nil {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), agent.FailureText(stderr, err))
			return fmt.Errorf("%w: %w", errReported, err)
		}

		_, _ = fmt.Fprint(cmd.OutOrStdout(), stdout)
		_, _ = fmt.Fprint(cmd.ErrOrStderr(), stderr)
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove a pod or deployment from this node",
	Long:  `Remove every container of a pod or deployment. Removing something that is not running succeeds.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger("error")
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		a, release, err := newAgent(cmd.Context(), logger, nil)
		if err != nil {
			return err
		}
		defer release()

		id := types.ResourceIdentity{
			Kind:      types.ResourceKind(removeKind),
			Name:      removeName,
			Namespace: removeNamespace,
		}
		removed, err := a.Remove(cmd.Context(), id)
		if err != nil {
			return err
		}

		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s removed (%d containers)\n", id, removed)
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print this node's telemetry as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger("error")
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		a, release, err := newAgent(cmd.Context(), logger, nil)
		if err != nil {
			return err
		}
		defer release()

		info, err := a.Info(cmd.Context())
		if err != nil {
			return err
		}

		return json.NewEncoder(cmd.OutOrStdout()).Encode(info)
	},
}

func init() {
	rootCmd.AddCommand(applyCmd, removeCmd, infoCmd)

	applyCmd.Flags().StringVarP(&applyFile, "filename", "f", "-", "manifest file, or - for stdin")

	removeCmd.Flags().StringVar(&removeKind, "kind", "", "resource kind: Pod or Deployment (required)")
	removeCmd.Flags().StringVar(&removeName, "name", "", "resource name (required)")
	removeCmd.Flags().StringVar(&removeNamespace, "namespace", "", "resource namespace")
	_ = removeCmd.MarkFlagRequired("kind")
	_ = removeCmd.MarkFlagRequired("name")
}

func readInput(cmd *cobra.Command, path string) (string, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read manifest: %w", err)
	}
	return string(data), nil
}

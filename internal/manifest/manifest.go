// Package manifest converts resources to and from the YAML documents sent to
// node agents. Both ends of the wire use this package, so the schema is shared.
package manifest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/danpasecinic/podfleet/internal/types"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"
)

var (
	// ErrUnsupportedKind is returned for documents whose kind cannot be scheduled
	ErrUnsupportedKind = errors.New("unsupported resource kind")
	// ErrMissingPayload is returned when a resource's kind has no matching manifest
	ErrMissingPayload = errors.New("resource has no manifest for its kind")
	// ErrMissingKind is returned for documents without a kind field
	ErrMissingKind = errors.New("document has no kind")
)

// Serialize renders a resource as a single YAML document.
// apiVersion and kind are always filled in; the caller's object is not modified.
func Serialize(res types.Resource) (string, error) {
	var obj interface{}

	switch res.Kind {
	case types.KindPod:
		if res.Pod == nil {
			return "", fmt.Errorf("serialize %s: %w", res.Kind, ErrMissingPayload)
		}
		pod := res.Pod.DeepCopy()
		pod.TypeMeta = metav1.TypeMeta{APIVersion: "v1", Kind: string(types.KindPod)}
		obj = pod
	case types.KindDeployment:
		if res.Deployment == nil {
			return "", fmt.Errorf("serialize %s: %w", res.Kind, ErrMissingPayload)
		}
		depl := res.Deployment.DeepCopy()
		depl.TypeMeta = metav1.TypeMeta{APIVersion: "apps/v1", Kind: string(types.KindDeployment)}
		obj = depl
	default:
		return "", fmt.Errorf("serialize %q: %w", res.Kind, ErrUnsupportedKind)
	}

	out, err := yaml.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("serialize %s: %w", res, err)
	}
	return string(out), nil
}

// Parse reads every YAML document from r. Empty documents are skipped.
func Parse(r io.Reader) ([]types.Resource, error) {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(r))

	var resources []types.Resource
	for i := 0; ; i++ {
		doc, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read document %d: %w", i, err)
		}

		if isBlank(doc) {
			continue
		}

		res, err := ParseOne(doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		resources = append(resources, res)
	}

	return resources, nil
}

// ParseOne decodes a single YAML or JSON document into a resource
func ParseOne(doc []byte) (types.Resource, error) {
	var meta metav1.TypeMeta
	if err := yaml.Unmarshal(doc, &meta); err != nil {
		return types.Resource{}, fmt.Errorf("decode type: %w", err)
	}

	switch types.ResourceKind(meta.Kind) {
	case types.KindPod:
		var pod corev1.Pod
		if err := yaml.UnmarshalStrict(doc, &pod); err != nil {
			return types.Resource{}, fmt.Errorf("decode pod: %w", err)
		}
		return types.NewPodResource(&pod), nil
	case types.KindDeployment:
		var depl appsv1.Deployment
		if err := yaml.UnmarshalStrict(doc, &depl); err != nil {
			return types.Resource{}, fmt.Errorf("decode deployment: %w", err)
		}
		return types.NewDeploymentResource(&depl), nil
	case "":
		return types.Resource{}, ErrMissingKind
	default:
		return types.Resource{}, fmt.Errorf("%q: %w", meta.Kind, ErrUnsupportedKind)
	}
}

func isBlank(doc []byte) bool {
	for _, line := range bytes.Split(doc, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' || bytes.Equal(line, []byte("---")) {
			continue
		}
		return false
	}
	return true
}

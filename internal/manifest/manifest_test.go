package manifest

import (
	"errors"
	"strings"
	"testing"

	"github.com/danpasecinic/podfleet/internal/types"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const multiDoc = `# web tier
apiVersion: v1
kind: Pod
metadata:
  name: web
  namespace: default
  labels:
    app: web
spec:
  containers:
    - name: nginx
      image: nginx:1.27
---
---
apiVersion: apps/v1
kind: Deployment
metadata:
  name: api
  namespace: prod
spec:
  replicas: 2
  selector:
    matchLabels:
      app: api
  template:
    metadata:
      labels:
        app: api
    spec:
      containers:
        - name: api
          image: ghcr.io/example/api:v1
`

func TestParse(t *testing.T) {
	resources, err := Parse(strings.NewReader(multiDoc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(resources) != 2 {
		t.Fatalf("Parse() returned %d resources, want 2", len(resources))
	}

	pod := resources[0]
	if pod.Kind != types.KindPod || pod.Pod == nil {
		t.Fatalf("first resource = %+v, want pod", pod)
	}
	if pod.Pod.Name != "web" || pod.Pod.Namespace != "default" {
		t.Errorf("pod identity = %s", pod)
	}
	if len(pod.Pod.Spec.Containers) != 1 || pod.Pod.Spec.Containers[0].Image != "nginx:1.27" {
		t.Errorf("unexpected pod containers: %+v", pod.Pod.Spec.Containers)
	}

	depl := resources[1]
	if depl.Kind != types.KindDeployment || depl.Deployment == nil {
		t.Fatalf("second resource = %+v, want deployment", depl)
	}
	if depl.Deployment.Spec.Replicas == nil || *depl.Deployment.Spec.Replicas != 2 {
		t.Errorf("replicas = %v, want 2", depl.Deployment.Spec.Replicas)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{
			name:    "unsupported kind",
			input:   "apiVersion: v1\nkind: Service\nmetadata:\n  name: svc\n",
			wantErr: ErrUnsupportedKind,
		},
		{
			name:    "missing kind",
			input:   "metadata:\n  name: nothing\n",
			wantErr: ErrMissingKind,
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				_, err := Parse(strings.NewReader(tt.input))
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
				}
			},
		)
	}

	resources, err := Parse(strings.NewReader("# nothing here\n---\n"))
	if err != nil {
		t.Fatalf("Parse() of blank input error = %v", err)
	}
	if len(resources) != 0 {
		t.Errorf("Parse() of blank input returned %d resources", len(resources))
	}
}

func TestSerialize(t *testing.T) {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "default"},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{{Name: "nginx", Image: "nginx"}},
		},
	}

	out, err := Serialize(types.NewPodResource(pod))
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	if !strings.Contains(out, "kind: Pod") || !strings.Contains(out, "apiVersion: v1") {
		t.Errorf("serialized manifest missing type meta:\n%s", out)
	}
	if pod.Kind != "" {
		t.Errorf("Serialize() mutated the input object: kind = %q", pod.Kind)
	}

	// the agent decodes exactly what the scheduler sends
	back, err := ParseOne([]byte(out))
	if err != nil {
		t.Fatalf("ParseOne() error = %v", err)
	}
	if back.Identity() != types.NewPodResource(pod).Identity() {
		t.Errorf("identity changed over the wire: %s", back)
	}
}

func TestSerialize_Errors(t *testing.T) {
	tests := []struct {
		name     string
		resource types.Resource
		wantErr  error
	}{
		{
			name:     "pod kind without pod",
			resource: types.Resource{Kind: types.KindPod},
			wantErr:  ErrMissingPayload,
		},
		{
			name:     "deployment kind without deployment",
			resource: types.Resource{Kind: types.KindDeployment, Pod: &corev1.Pod{}},
			wantErr:  ErrMissingPayload,
		},
		{
			name:     "unknown kind",
			resource: types.Resource{Kind: "CronJob"},
			wantErr:  ErrUnsupportedKind,
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				_, err := Serialize(tt.resource)
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Serialize() error = %v, want %v", err, tt.wantErr)
				}
			},
		)
	}
}

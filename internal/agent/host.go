package agent

import (
	"context"
	"fmt"

	"github.com/danpasecinic/podfleet/internal/types"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostProbe reads the node's platform and resource facts. Pods are filled in
// by the agent.
type HostProbe func(ctx context.Context) (types.SystemInfo, error)

const mib = 1024 * 1024

// ProbeHost reads host facts with gopsutil
func ProbeHost(ctx context.Context) (types.SystemInfo, error) {
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return types.SystemInfo{}, fmt.Errorf("host info: %w", err)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return types.SystemInfo{}, fmt.Errorf("virtual memory: %w", err)
	}

	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return types.SystemInfo{}, fmt.Errorf("swap memory: %w", err)
	}

	cpus, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return types.SystemInfo{}, fmt.Errorf("cpu count: %w", err)
	}

	return types.SystemInfo{
		Platform: types.Platform{
			Arch: hi.KernelArch,
			OS:   hi.OS,
		},
		Hostname:       hi.Hostname,
		TotalMemoryMiB: vm.Total / mib,
		UsedMemoryMiB:  vm.Used / mib,
		TotalSwapMiB:   swap.Total / mib,
		UsedSwapMiB:    swap.Used / mib,
		NumCPUs:        cpus,
	}, nil
}

// Package system samples local host metrics for the health and metrics
// endpoints. Samples served to polling clients come from a short TTL
// cache so concurrent requests share one reading.
package system

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"

	"github.com/shellpilot/agent/internal/cache"
)

// cpuSampleWindow is the interval one CPU usage reading spans.
const cpuSampleWindow = 200 * time.Millisecond

// Collector samples host metrics through gopsutil.
type Collector struct {
	cache *cache.MetricsCache
}

// NewCollector creates a collector backed by the given cache.
func NewCollector(mc *cache.MetricsCache) *Collector {
	return &Collector{cache: mc}
}

// Host returns cached host identification.
func (c *Collector) Host() (*Host, error) {
	v, err := c.cache.GetOrSet(cache.KeyHost, func() (any, error) {
		return readHost()
	})
	if err != nil {
		return nil, err
	}
	return v.(*Host), nil
}

// CPU returns a cached CPU usage sample.
func (c *Collector) CPU() (*CPU, error) {
	v, err := c.cache.GetOrSet(cache.KeyCPU, func() (any, error) {
		return readCPU()
	})
	if err != nil {
		return nil, err
	}
	return v.(*CPU), nil
}

// Memory returns a cached memory usage sample.
func (c *Collector) Memory() (*Memory, error) {
	v, err := c.cache.GetOrSet(cache.KeyMemory, func() (any, error) {
		return readMemory()
	})
	if err != nil {
		return nil, err
	}
	return v.(*Memory), nil
}

// Mounts returns cached filesystem usage.
func (c *Collector) Mounts() ([]Mount, error) {
	v, err := c.cache.GetOrSet(cache.KeyDisk, func() (any, error) {
		return readMounts()
	})
	if err != nil {
		return nil, err
	}
	return v.([]Mount), nil
}

// Snapshot returns a cached full metrics snapshot.
func (c *Collector) Snapshot() (*Snapshot, error) {
	v, err := c.cache.GetOrSet(cache.KeyAll, func() (any, error) {
		return readSnapshot()
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func readHost() (*Host, error) {
	info, err := host.Info()
	if err != nil {
		return nil, fmt.Errorf("read host info: %w", err)
	}
	return &Host{
		Hostname:        info.Hostname,
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
		KernelArch:      info.KernelArch,
		Uptime:          info.Uptime,
		UptimeHuman:     formatUptime(info.Uptime),
		Procs:           info.Procs,
	}, nil
}

func readCPU() (*CPU, error) {
	info, err := cpu.Info()
	if err != nil {
		return nil, fmt.Errorf("read cpu info: %w", err)
	}

	perCPU, err := cpu.Percent(cpuSampleWindow, true)
	if err != nil {
		return nil, fmt.Errorf("read cpu usage: %w", err)
	}
	var total float64
	for _, p := range perCPU {
		total += p
	}
	if len(perCPU) > 0 {
		total /= float64(len(perCPU))
	}

	avg, err := load.Avg()
	if err != nil {
		// Load average is not available everywhere.
		avg = &load.AvgStat{}
	}

	var model string
	if len(info) > 0 {
		model = info[0].ModelName
	}
	return &CPU{
		Cores:       len(info),
		ModelName:   model,
		UsageTotal:  total,
		UsagePerCPU: perCPU,
		LoadAvg1:    avg.Load1,
		LoadAvg5:    avg.Load5,
		LoadAvg15:   avg.Load15,
	}, nil
}

func readMemory() (*Memory, error) {
	vmem, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("read virtual memory: %w", err)
	}
	swap, err := mem.SwapMemory()
	if err != nil {
		swap = &mem.SwapMemoryStat{}
	}
	return &Memory{
		Total:       vmem.Total,
		Available:   vmem.Available,
		Used:        vmem.Used,
		UsedPercent: vmem.UsedPercent,
		SwapTotal:   swap.Total,
		SwapUsed:    swap.Used,
		SwapPercent: swap.UsedPercent,
	}, nil
}

func readMounts() ([]Mount, error) {
	partitions, err := disk.Partitions(false)
	if err != nil {
		return nil, fmt.Errorf("read partitions: %w", err)
	}

	var mounts []Mount
	for _, p := range partitions {
		if p.Fstype == "squashfs" || p.Fstype == "tmpfs" || p.Fstype == "devtmpfs" {
			continue
		}
		usage, err := disk.Usage(p.Mountpoint)
		if err != nil {
			continue
		}
		mounts = append(mounts, Mount{
			Device:      p.Device,
			Mountpoint:  p.Mountpoint,
			Fstype:      p.Fstype,
			Total:       usage.Total,
			Used:        usage.Used,
			Free:        usage.Free,
			UsedPercent: usage.UsedPercent,
		})
	}
	return mounts, nil
}

func readNetwork() ([]NIC, error) {
	counters, err := net.IOCounters(true)
	if err != nil {
		return nil, fmt.Errorf("read network counters: %w", err)
	}
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("read network interfaces: %w", err)
	}

	addrs := make(map[string][]string)
	for _, iface := range interfaces {
		for _, a := range iface.Addrs {
			addrs[iface.Name] = append(addrs[iface.Name], a.Addr)
		}
	}

	var nics []NIC
	for _, c := range counters {
		if c.Name == "lo" {
			continue
		}
		nics = append(nics, NIC{
			Name:        c.Name,
			BytesSent:   c.BytesSent,
			BytesRecv:   c.BytesRecv,
			PacketsSent: c.PacketsSent,
			PacketsRecv: c.PacketsRecv,
			Addrs:       addrs[c.Name],
		})
	}
	return nics, nil
}

func readSnapshot() (*Snapshot, error) {
	h, err := readHost()
	if err != nil {
		return nil, err
	}
	cpuSample, err := readCPU()
	if err != nil {
		return nil, err
	}
	memSample, err := readMemory()
	if err != nil {
		return nil, err
	}
	mounts, err := readMounts()
	if err != nil {
		return nil, err
	}
	nics, err := readNetwork()
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		Timestamp: time.Now(),
		Host:      *h,
		CPU:       *cpuSample,
		Memory:    *memSample,
		Mounts:    mounts,
		Network:   nics,
	}, nil
}

func formatUptime(seconds uint64) string {
	d := time.Duration(seconds) * time.Second
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

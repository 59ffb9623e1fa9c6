package report

import (
	"fmt"
	"strconv"

	"github.com/a3sha2/oxasl"
	"github.com/dustin/go-humanize"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// AddEnvironmentPage appends a host diagnostics page describing the machine
// and FSL configuration a run executed under. Collection failures are logged
// and the corresponding rows omitted.
func (r *Report) AddEnvironmentPage(fslDir, outputType string) *Page {
	p := r.Page("environment")
	p.Heading("Environment", 0)

	rows := [][]string{
		{"Property", "Value"},
		{"oxasl version", oxasl.ClientVersion},
	}

	if info, err := host.Info(); err == nil {
		rows = append(rows, []string{"host", fmt.Sprintf("%s (%s %s)", info.Hostname, info.Platform, info.PlatformVersion)})
	} else {
		grip.Debug(message.WrapError(err, "collecting host info"))
	}
	if n, err := cpu.Counts(true); err == nil {
		rows = append(rows, []string{"logical cpus", strconv.Itoa(n)})
	} else {
		grip.Debug(message.WrapError(err, "counting cpus"))
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		rows = append(rows, []string{"memory", humanize.IBytes(vm.Total)})
	} else {
		grip.Debug(message.WrapError(err, "collecting memory stats"))
	}

	if fslDir == "" {
		fslDir = "(not set)"
	}
	if outputType == "" {
		outputType = "(not set)"
	}
	rows = append(rows,
		[]string{oxasl.FSLDirEnvVar, fslDir},
		[]string{oxasl.FSLOutputTypeEnvVar, outputType},
	)

	p.Table(rows)
	return p
}

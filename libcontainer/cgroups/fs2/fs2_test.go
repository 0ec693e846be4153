package fs2

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmjail/libcontainer/cgroups"
	"github.com/vmjail/libcontainer/configs"
)

func testDir(t *testing.T) string {
	t.Helper()
	cgroups.TestMode = true
	t.Cleanup(func() { cgroups.TestMode = false })
	return t.TempDir()
}

func readTrimmed(t *testing.T, dir, file string) string {
	t.Helper()
	val, err := cgroups.ReadFile(dir, file)
	require.NoError(t, err)
	return strings.TrimSpace(val)
}

func TestNumToStr(t *testing.T) {
	cases := map[int64]string{
		0:    "",
		-1:   "max",
		10:   "10",
		4096: "4096",
	}
	for i, expected := range cases {
		assert.Equal(t, expected, numToStr(i), "numToStr(%d)", i)
	}
}

func TestSetMemoryAndPids(t *testing.T) {
	dir := testDir(t)

	r := &configs.Resources{
		Memory:    104857600,
		PidsLimit: 50,
	}
	require.NoError(t, setMemory(dir, r))
	require.NoError(t, setPids(dir, r))

	assert.Equal(t, "104857600", readTrimmed(t, dir, "memory.max"))
	assert.Equal(t, "50", readTrimmed(t, dir, "pids.max"))
}

func TestSetMemorySwapOrder(t *testing.T) {
	dir := testDir(t)

	// memory 200M, memory+swap 500M: the swap-only limit is 300M.
	r := &configs.Resources{
		Memory:            209715200,
		MemorySwap:        524288000,
		MemoryReservation: 104857600,
	}
	require.NoError(t, setMemory(dir, r))

	assert.Equal(t, "209715200", readTrimmed(t, dir, "memory.max"))
	assert.Equal(t, "314572800", readTrimmed(t, dir, "memory.swap.max"))
	assert.Equal(t, "104857600", readTrimmed(t, dir, "memory.low"))
}

// Equal memory and memory+swap means "no swap at all"; the swap-only
// limit must be the literal 0, not left untouched.
func TestSetMemorySwapZero(t *testing.T) {
	dir := testDir(t)

	r := &configs.Resources{
		Memory:     104857600,
		MemorySwap: 104857600,
	}
	require.NoError(t, setMemory(dir, r))
	assert.Equal(t, "0", readTrimmed(t, dir, "memory.swap.max"))
}

// A dropped kernel memory limit must not fail the whole update.
func TestSetMemoryDropsKernelMemory(t *testing.T) {
	dir := testDir(t)

	r := &configs.Resources{
		Memory:       104857600,
		KernelMemory: 16777216,
	}
	require.NoError(t, setMemory(dir, r))
	assert.Equal(t, "104857600", readTrimmed(t, dir, "memory.max"))
}

func TestSetPidsUnlimited(t *testing.T) {
	dir := testDir(t)

	require.NoError(t, setPids(dir, &configs.Resources{PidsLimit: -1}))
	assert.Equal(t, "max", readTrimmed(t, dir, "pids.max"))
}

func TestSetCpu(t *testing.T) {
	dir := testDir(t)

	r := &configs.Resources{
		CpuShares: 1024,
		CpuQuota:  200000,
		CpuPeriod: 100000,
	}
	require.NoError(t, setCpu(dir, r))

	// 1024 shares is the v1 default and maps to the v2 default weight.
	assert.Equal(t, "39", readTrimmed(t, dir, "cpu.weight"))
	assert.Equal(t, "200000 100000", readTrimmed(t, dir, "cpu.max"))
}

func TestSetCpuQuotaOnly(t *testing.T) {
	dir := testDir(t)

	r := &configs.Resources{CpuQuota: 50000}
	require.NoError(t, setCpu(dir, r))
	assert.Equal(t, "50000 100000", readTrimmed(t, dir, "cpu.max"))
}

func TestSetCpuUnlimitedQuota(t *testing.T) {
	dir := testDir(t)

	r := &configs.Resources{CpuQuota: -1, CpuPeriod: 100000}
	require.NoError(t, setCpu(dir, r))
	assert.Equal(t, "max 100000", readTrimmed(t, dir, "cpu.max"))
}

func TestSetCpuset(t *testing.T) {
	dir := testDir(t)

	r := &configs.Resources{CpusetCpus: "0-3,7", CpusetMems: "0"}
	require.NoError(t, setCpuset(dir, r))
	assert.Equal(t, "0-3,7", readTrimmed(t, dir, "cpuset.cpus"))
	assert.Equal(t, "0", readTrimmed(t, dir, "cpuset.mems"))

	// Empty lists mean inherit; nothing may be written for them.
	empty := testDir(t)
	require.NoError(t, setCpuset(empty, &configs.Resources{}))
	_, err := os.Stat(filepath.Join(empty, "cpuset.cpus"))
	assert.True(t, os.IsNotExist(err))
}

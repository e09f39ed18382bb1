package xid

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
)

// 机器 ID 来源的环境变量。
const (
	EnvMachineID = "XID_MACHINE_ID"
	EnvHostname  = "HOSTNAME"
)

// 便于测试替换。
var osHostname = os.Hostname

// DefaultMachineID 按以下顺序确定 16 位机器 ID：
// XID_MACHINE_ID（0-65535）、HOSTNAME 哈希、os.Hostname 哈希。
func DefaultMachineID() (uint16, error) {
	if v := os.Getenv(EnvMachineID); v != "" {
		id, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("xid: invalid %s %q: %w", EnvMachineID, v, err)
		}
		return uint16(id), nil
	}
	if h := os.Getenv(EnvHostname); h != "" {
		return hashToMachineID(h), nil
	}
	h, err := osHostname()
	if err != nil {
		return 0, fmt.Errorf("xid: hostname: %w", err)
	}
	if h == "" {
		return 0, errors.New("xid: empty hostname")
	}
	return hashToMachineID(h), nil
}

// hashToMachineID 对 FNV-1a 32 位哈希做异或折叠。
func hashToMachineID(s string) uint16 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	sum := h.Sum32()
	return uint16(sum>>16) ^ uint16(sum&0xFFFF)
}

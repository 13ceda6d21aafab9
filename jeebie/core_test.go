package jeebie

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDebugData_UninitializedEmulator(t *testing.T) {
	e := &Emulator{}
	assert.Nil(t, e.ExtractDebugData(), "should return nil before a cartridge is loaded")
}

func TestExtractDebugData_WithTestROM(t *testing.T) {
	testROMPath := "../test-roms/dmg-acid2.gb"

	e, err := NewWithFile(testROMPath)
	if err != nil {
		t.Skipf("test ROM not available: %v", err)
	}

	data := e.ExtractDebugData()
	assert.NotNil(t, data, "debug data should not be nil")
	assert.NotNil(t, data.Memory, "memory snapshot should not be nil")
	assert.NotNil(t, data.CPU, "cpu state should not be nil")

	pc := data.CPU.PC
	snapshot := data.Memory

	inRange := pc >= snapshot.StartAddr && pc < snapshot.StartAddr+uint16(len(snapshot.Bytes))
	assert.True(t, inRange, "PC 0x%04X should fall within snapshot range [0x%04X, 0x%04X)",
		pc, snapshot.StartAddr, snapshot.StartAddr+uint16(len(snapshot.Bytes)))

	if len(snapshot.Bytes) > 0 && snapshot.StartAddr <= 0xFF00 {
		lastAddr := snapshot.StartAddr + uint16(len(snapshot.Bytes)-1)
		assert.True(t, lastAddr >= snapshot.StartAddr, "snapshot must not wrap the address space")
	}

	assert.True(t, len(snapshot.Bytes) > 0 && len(snapshot.Bytes) <= 2*debugSnapshotRadius+1,
		"snapshot size %d should stay within the configured radius", len(snapshot.Bytes))
}

func TestSnapshotSizeNearAddressSpaceEnd(t *testing.T) {
	cases := []struct {
		name         string
		startAddr    uint16
		requested    int
		expectedSize int
	}{
		{"middle of address space", 0x8000, 201, 201},
		{"clipped near top", 0xFF80, 201, 0x80},
		{"clipped at very top", 0xFFF0, 201, 0x10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			size := tc.requested
			if uint32(tc.startAddr)+uint32(size) > 0x10000 {
				size = 0x10000 - int(tc.startAddr)
			}
			assert.Equal(t, tc.expectedSize, size)

			for i := 1; i < size; i++ {
				addr := tc.startAddr + uint16(i)
				prev := tc.startAddr + uint16(i-1)
				assert.True(t, addr > prev, "addresses within a clipped snapshot must stay monotonic")
			}
		})
	}
}

package pescan

import (
	"bytes"
	"testing"

	"github.com/alecthomas/assert"
)

func TestGetFileAddress(t *testing.T) {
	resolver := &RVAResolver{
		Runs: []*Run{
			{VirtualAddress: 0x1000, VirtualEnd: 0x2000, PhysicalAddress: 0x400},
			{VirtualAddress: 0x3000, VirtualEnd: 0x3200, PhysicalAddress: 0x1400},
		},
	}

	offset, mapped := resolver.GetFileAddress(0x1000)
	assert.True(t, mapped)
	assert.Equal(t, uint32(0x400), offset)

	offset, mapped = resolver.GetFileAddress(0x1fff)
	assert.True(t, mapped)
	assert.Equal(t, uint32(0x13ff), offset)

	offset, mapped = resolver.GetFileAddress(0x3100)
	assert.True(t, mapped)
	assert.Equal(t, uint32(0x1500), offset)

	// End of a run is exclusive; gaps and low RVAs are unmapped.
	_, mapped = resolver.GetFileAddress(0x2000)
	assert.False(t, mapped)

	_, mapped = resolver.GetFileAddress(0x2fff)
	assert.False(t, mapped)

	_, mapped = resolver.GetFileAddress(0)
	assert.False(t, mapped)
}

func TestNewRVAResolver(t *testing.T) {
	image := buildTestImage(true, testLibraries())
	pe_file, err := NewPEFile(bytes.NewReader(image))
	assert.NoError(t, err)

	resolver := pe_file.rva_resolver
	assert.True(t, resolver.Is64Bit)
	assert.Equal(t, 1, len(resolver.Runs))

	offset, mapped := resolver.GetFileAddress(test_section_rva)
	assert.True(t, mapped)
	assert.Equal(t, uint32(test_section_offset), offset)

	// Sections with no raw data never produce a run.
	empty := NewRVAResolver([]*Section{
		{VMA: 0x5000, VirtualSize: 0x1000, Size: 0},
	}, 0, false)
	assert.Equal(t, 0, len(empty.Runs))
}

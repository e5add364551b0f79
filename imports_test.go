package pescan

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/pkg/errors"
)

func TestImportWalk(t *testing.T) {
	for _, is_64bit := range []bool{false, true} {
		name := "PE32"
		if is_64bit {
			name = "PE32+"
		}

		t.Run(name, func(t *testing.T) {
			image := buildTestImage(is_64bit, testLibraries())
			pe_file, err := NewPEFile(bytes.NewReader(image))
			assert.NoError(t, err)
			assert.NoError(t, pe_file.ImportError())

			// The terminating descriptor is never materialized.
			assert.Equal(t, []string{"kernel32.dll", "user32.dll"},
				pe_file.LibraryNames())

			// Neither is the terminating thunk.
			kernel32 := pe_file.ImportTable[0]
			assert.Equal(t, 3, len(kernel32.Entries))

			assert.Equal(t, "CreateFileA", kernel32.Entries[0].Name)
			assert.Equal(t, uint16(1), kernel32.Entries[0].Hint)
			assert.False(t, kernel32.Entries[0].ByOrdinal)

			assert.Equal(t, "CreateMutexW", kernel32.Entries[1].Name)
			assert.Equal(t, uint16(2), kernel32.Entries[1].Hint)

			by_ordinal := kernel32.Entries[2]
			assert.True(t, by_ordinal.ByOrdinal)
			assert.Equal(t, uint64(7), by_ordinal.OrdinalOrRVA)
			assert.Equal(t, "#7", by_ordinal.Label())

			ordinal_flag := IMAGE_ORDINAL_FLAG32
			if is_64bit {
				ordinal_flag = IMAGE_ORDINAL_FLAG64
			}
			assert.Equal(t, ordinal_flag|7, by_ordinal.RawValue)

			assert.Equal(t, []string{"MessageBoxW"},
				pe_file.Functions("user32.dll"))
		})
	}
}

// After a hint/name side trip the cursor must resume in the lookup
// table right after the previous thunk - names and ordinals
// interleaved in one table come out in exact file order.
func TestCursorRestoration(t *testing.T) {
	image := buildTestImage(false, []fakeLibrary{
		{name: "mixed.dll", entries: []fakeEntry{
			{name: "Alpha", hint: 10},
			{ordinal: 7},
			{name: "Beta", hint: 11},
			{ordinal: 9},
			{name: "Gamma", hint: 12},
		}},
	})

	pe_file, err := NewPEFile(bytes.NewReader(image))
	assert.NoError(t, err)
	assert.NoError(t, pe_file.ImportError())

	assert.Equal(t, []string{"Alpha", "#7", "Beta", "#9", "Gamma"},
		pe_file.Functions("mixed.dll"))
}

func TestFirstThunkFallback(t *testing.T) {
	// Packed style: OriginalFirstThunk zeroed, table only reachable
	// through FirstThunk.
	image := buildTestImage(false, []fakeLibrary{
		{name: "packed.dll", zero_oft: true, entries: []fakeEntry{
			{name: "UnpackMe", hint: 4},
		}},
	})

	pe_file, err := NewPEFile(bytes.NewReader(image))
	assert.NoError(t, err)
	assert.NoError(t, pe_file.ImportError())

	assert.Equal(t, uint32(0),
		pe_file.ImportTable[0].Descriptor.OriginalFirstThunk)
	assert.Equal(t, []string{"UnpackMe"}, pe_file.Functions("packed.dll"))
}

func TestDirectoryAbsent(t *testing.T) {
	// A zero import directory RVA is a valid "no imports" image.
	image := wrapTestSection(false, make([]byte, 0x200), 0)

	pe_file, err := NewPEFile(bytes.NewReader(image))
	assert.NoError(t, err)
	assert.NoError(t, pe_file.ImportError())
	assert.Equal(t, 0, len(pe_file.ImportTable))
}

func TestEmptyImportDirectory(t *testing.T) {
	// A directory that starts with the terminating descriptor.
	image := buildTestImage(false, nil)

	pe_file, err := NewPEFile(bytes.NewReader(image))
	assert.NoError(t, err)
	assert.NoError(t, pe_file.ImportError())
	assert.Equal(t, 0, len(pe_file.ImportTable))
}

func TestDescriptorNameTruncation(t *testing.T) {
	// A bad name on a later descriptor means "end of real data":
	// keep the libraries parsed so far and record a warning.
	image := buildTestImage(false, []fakeLibrary{
		{name: "kernel32.dll", entries: []fakeEntry{
			{name: "CreateFileA", hint: 1},
		}},
		{name: "ignored.dll", name_rva: 0x00f00000, entries: []fakeEntry{
			{ordinal: 1},
		}},
	})

	pe_file, err := NewPEFile(bytes.NewReader(image))
	assert.NoError(t, err)
	assert.NoError(t, pe_file.ImportError())

	assert.Equal(t, []string{"kernel32.dll"}, pe_file.LibraryNames())
	assert.Equal(t, []string{"CreateFileA"}, pe_file.Functions("kernel32.dll"))
	assert.True(t, len(pe_file.Warnings) > 0)
}

func TestNameFileOffsetFallback(t *testing.T) {
	// Packers sometimes store the descriptor name field as a raw
	// file offset instead of an RVA. An unmapped name RVA gets a
	// second chance as a file offset - the library is kept and the
	// detour leaves a warning.
	libraries := []fakeLibrary{
		{name: "winmm.dll", entries: []fakeEntry{
			{name: "timeGetTime", hint: 5},
		}},
	}

	// Find where the builder put the name string, then point the
	// descriptor at that file offset directly. The offset lands in
	// the header region when read as an RVA, so translation fails.
	layout := buildTestImage(false, libraries)
	name_offset := bytes.Index(layout, []byte("winmm.dll"))
	libraries[0].name_rva = uint32(name_offset)

	image := buildTestImage(false, libraries)
	pe_file, err := NewPEFile(bytes.NewReader(image))
	assert.NoError(t, err)
	assert.NoError(t, pe_file.ImportError())

	assert.Equal(t, []string{"winmm.dll"}, pe_file.LibraryNames())
	assert.Equal(t, []string{"timeGetTime"},
		pe_file.Functions("winmm.dll"))
	assert.True(t, len(pe_file.Warnings) > 0)
}

func TestDuplicateLibraryWarning(t *testing.T) {
	image := buildTestImage(false, []fakeLibrary{
		{name: "dup.dll", entries: []fakeEntry{
			{name: "First", hint: 1},
		}},
		{name: "dup.dll", entries: []fakeEntry{
			{name: "Second", hint: 2},
		}},
	})

	pe_file, err := NewPEFile(bytes.NewReader(image))
	assert.NoError(t, err)
	assert.NoError(t, pe_file.ImportError())

	// Both copies stay in the table - deduplication is the
	// caller's call, not the parser's.
	assert.Equal(t, []string{"dup.dll", "dup.dll"}, pe_file.LibraryNames())
	assert.Equal(t, []string{"dup.dll!First", "dup.dll!Second"},
		pe_file.Imports())

	found := false
	for _, warning := range pe_file.Warnings {
		if strings.Contains(warning, "duplicate library") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestFirstDescriptorNameFatal(t *testing.T) {
	// The same failure on the very first descriptor means the
	// directory itself is garbage.
	image := buildTestImage(false, []fakeLibrary{
		{name: "ignored.dll", name_rva: 0x00f00000, entries: []fakeEntry{
			{ordinal: 1},
		}},
	})

	pe_file, err := NewPEFile(bytes.NewReader(image))
	assert.NoError(t, err)

	assert.Equal(t, ErrDescriptorNameUnreadable,
		errors.Cause(pe_file.ImportError()))
	assert.Equal(t, 0, len(pe_file.ImportTable))
}

func TestLookupTableUnreachable(t *testing.T) {
	image := buildTestImage(false, []fakeLibrary{
		{name: "good.dll", entries: []fakeEntry{
			{name: "Fine", hint: 1},
		}},
		{name: "broken.dll", table_rva: 0x00500000, entries: []fakeEntry{
			{ordinal: 1},
		}},
	})

	pe_file, err := NewPEFile(bytes.NewReader(image))
	assert.NoError(t, err)

	// The whole import parse aborts, but everything collected up to
	// the failure is retained.
	assert.Equal(t, ErrLookupTableUnreachable,
		errors.Cause(pe_file.ImportError()))
	assert.Equal(t, []string{"good.dll", "broken.dll"},
		pe_file.LibraryNames())
	assert.Equal(t, []string{"Fine"}, pe_file.Functions("good.dll"))
	assert.Equal(t, 0, len(pe_file.ImportTable[1].Entries))
}

func TestHintNameTableUnreachable(t *testing.T) {
	image := buildTestImage(false, []fakeLibrary{
		{name: "broken.dll", entries: []fakeEntry{
			{name_rva: 0x00600000},
		}},
	})

	pe_file, err := NewPEFile(bytes.NewReader(image))
	assert.NoError(t, err)
	assert.Equal(t, ErrHintNameTableUnreachable,
		errors.Cause(pe_file.ImportError()))
}

func TestHintNameUnreadable(t *testing.T) {
	libraries := []fakeLibrary{
		{name: "broken.dll", entries: []fakeEntry{
			{name: "X", hint: 1},
		}},
	}

	// Point the thunk at the very last mapped byte so the two byte
	// hint read runs off the end of the file.
	layout := buildTestImage(false, libraries)
	section_size := uint32(len(layout) - test_section_offset)
	libraries[0].entries[0].name_rva = test_section_rva + section_size - 1

	image := buildTestImage(false, libraries)
	pe_file, err := NewPEFile(bytes.NewReader(image))
	assert.NoError(t, err)
	assert.Equal(t, ErrHintNameUnreadable,
		errors.Cause(pe_file.ImportError()))
}

func TestDescriptorFlood(t *testing.T) {
	// Every descriptor non zero, no terminator in sight: the walk
	// must stop at the cap with a dedicated error, not loop to EOF.
	count := MAX_IMPORT_TABLE_LENGTH + 2
	section := make([]byte, count*20+0x200)

	name_offset := uint32(count * 20)
	copy(section[name_offset:], "flood.dll")

	for i := 0; i < count; i++ {
		descriptor := section[i*20:]
		binary.LittleEndian.PutUint32(descriptor[0:4], 1)
		binary.LittleEndian.PutUint32(descriptor[12:16],
			test_section_rva+name_offset)
		binary.LittleEndian.PutUint32(descriptor[16:20], 1)
	}

	image := wrapTestSection(false, section, test_section_rva)
	pe_file, err := NewPEFile(bytes.NewReader(image))
	assert.NoError(t, err)
	assert.Equal(t, ErrImportTableTooLarge,
		errors.Cause(pe_file.ImportError()))
}

func TestLookupTableFlood(t *testing.T) {
	count := MAX_IMPORT_FUNCTIONS + 2
	section := make([]byte, 40+count*4+0x40)

	table_rva := uint32(test_section_rva + 40)
	name_offset := uint32(40 + count*4)

	binary.LittleEndian.PutUint32(section[0:4], table_rva)
	binary.LittleEndian.PutUint32(section[12:16],
		test_section_rva+name_offset)
	binary.LittleEndian.PutUint32(section[16:20], table_rva)
	copy(section[name_offset:], "flood.dll")

	for i := 0; i < count; i++ {
		binary.LittleEndian.PutUint32(section[40+i*4:],
			uint32(IMAGE_ORDINAL_FLAG32|1))
	}

	image := wrapTestSection(false, section, test_section_rva)
	pe_file, err := NewPEFile(bytes.NewReader(image))
	assert.NoError(t, err)
	assert.Equal(t, ErrImportTableTooLarge,
		errors.Cause(pe_file.ImportError()))
}

func TestImpHash(t *testing.T) {
	image := buildTestImage(false, testLibraries())
	pe_file, err := NewPEFile(bytes.NewReader(image))
	assert.NoError(t, err)

	normalized := strings.Join([]string{
		"kernel32.createfilea",
		"kernel32.createmutexw",
		"kernel32.ord7",
		"user32.messageboxw",
	}, ",")
	expected := fmt.Sprintf("%x", md5.Sum([]byte(normalized)))
	assert.Equal(t, expected, pe_file.ImpHash())

	// No imports hash to nothing.
	empty := wrapTestSection(false, make([]byte, 0x200), 0)
	pe_file, err = NewPEFile(bytes.NewReader(empty))
	assert.NoError(t, err)
	assert.Equal(t, "", pe_file.ImpHash())
}

package pescan

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const (
	IMAGE_DIRECTORY_ENTRY_IMPORT = 1

	IMAGE_ORDINAL_FLAG32 = uint64(0x80000000)
	IMAGE_ORDINAL_FLAG64 = uint64(0x8000000000000000)
)

// One IMAGE_IMPORT_DESCRIPTOR record - 20 bytes on disk, one per
// imported library. The descriptor stream is terminated by a record
// whose OriginalFirstThunk and FirstThunk are both zero.
type ImportDescriptor struct {
	OriginalFirstThunk uint32
	TimeDateStamp      uint32
	ForwarderChain     uint32
	NameRVA            uint32
	FirstThunk         uint32
}

func decodeImportDescriptor(buff []byte) ImportDescriptor {
	return ImportDescriptor{
		OriginalFirstThunk: binary.LittleEndian.Uint32(buff[0:4]),
		TimeDateStamp:      binary.LittleEndian.Uint32(buff[4:8]),
		ForwarderChain:     binary.LittleEndian.Uint32(buff[8:12]),
		NameRVA:            binary.LittleEndian.Uint32(buff[12:16]),
		FirstThunk:         binary.LittleEndian.Uint32(buff[16:20]),
	}
}

// One slot of an import lookup table - a single imported symbol. The
// raw thunk is 4 bytes for PE32 and 8 for PE32+; its top bit selects
// import by ordinal, otherwise the low 31 bits are an RVA into the
// hint/name table.
type ImportEntry struct {
	RawValue     uint64
	ByOrdinal    bool
	OrdinalOrRVA uint64
	Hint         uint16
	Name         string
}

// Ordinal returns the loader visible ordinal number. The loader only
// honors the low 16 bits of an ordinal thunk, so the mask is 0xFFFF
// rather than the 15 bits some tools use.
func (self *ImportEntry) Ordinal() uint64 {
	return self.OrdinalOrRVA & 0xFFFF
}

// Label renders the entry the way the query layer exposes it: the
// resolved name, or #N for imports by ordinal.
func (self *ImportEntry) Label() string {
	if self.ByOrdinal {
		return fmt.Sprintf("#%d", self.Ordinal())
	}
	return self.Name
}

// A Library pairs one import descriptor with its resolved name and the
// ordered entries of its lookup table. Entry order is file order - it
// mirrors the import address table layout the loader fills in, so it
// must be preserved.
type Library struct {
	Descriptor ImportDescriptor
	Name       string
	Entries    []*ImportEntry
}

// parseImports builds the import table in a single pass: one walk over
// the descriptor stream to collect libraries, then one walk per
// library over its lookup table. Fatal errors abort the import parse
// but leave whatever was already collected on the PEFile.
func (self *PEFile) parseImports() error {
	offset, present := self.DirectoryLocation(IMAGE_DIRECTORY_ENTRY_IMPORT)
	if !present {
		// No imports - a valid, empty result.
		return nil
	}

	if err := self.parseImportDescriptors(int64(offset)); err != nil {
		return err
	}

	for _, library := range self.ImportTable {
		if err := self.parseLookupTable(library); err != nil {
			return err
		}
	}

	return nil
}

func (self *PEFile) parseImportDescriptors(offset int64) error {
	self.reader.Seek(offset)

	seen_names := make(map[string]bool)
	record := make([]byte, 20)

	for {
		// A short read here means the directory itself is
		// untrustworthy - abort the whole import parse.
		if err := self.reader.ReadFull(record); err != nil {
			return errors.Wrap(ErrDescriptorUnreadable, err.Error())
		}

		descriptor := decodeImportDescriptor(record)
		if descriptor.OriginalFirstThunk == 0 &&
			descriptor.FirstThunk == 0 {
			break
		}

		name_offset, mapped := self.rva_resolver.GetFileAddress(
			descriptor.NameRVA)
		if !mapped {
			// Packers occasionally place name strings outside
			// any mapped section. Try the RVA as a raw file
			// offset - for name strings only, never for tables.
			name_offset = descriptor.NameRVA
			self.warn("library name RVA %#x is unmapped, "+
				"trying it as a file offset", descriptor.NameRVA)
		}

		saved_offset := self.reader.Tell()
		self.reader.Seek(int64(name_offset))
		name, err := self.reader.ReadTerminatedString(MAX_DLL_NAME_LENGTH)
		self.reader.Seek(saved_offset)

		if err != nil {
			// The Windows loader does not give up on a
			// malformed trailing descriptor: a bad name after
			// at least one good library means "end of real
			// data". A bad first name means the directory is
			// garbage.
			if len(self.ImportTable) > 0 {
				self.warn("could not read the name of import "+
					"descriptor %d, truncating the import table",
					len(self.ImportTable))
				break
			}
			return errors.Wrap(ErrDescriptorNameUnreadable, err.Error())
		}

		if seen_names[name] {
			self.warn("duplicate library %s in the import directory", name)
		}
		seen_names[name] = true

		self.ImportTable = append(self.ImportTable, &Library{
			Descriptor: descriptor,
			Name:       name,
		})

		if len(self.ImportTable) > MAX_IMPORT_TABLE_LENGTH {
			return errors.Wrapf(ErrImportTableTooLarge,
				"more than %d descriptors with no terminator",
				MAX_IMPORT_TABLE_LENGTH)
		}
	}

	return nil
}

func (self *PEFile) parseLookupTable(library *Library) error {
	table_rva := library.Descriptor.OriginalFirstThunk
	if table_rva == 0 {
		// Packed binaries often leave OriginalFirstThunk zeroed
		// and only populate the address table.
		table_rva = library.Descriptor.FirstThunk
	}

	offset, mapped := self.rva_resolver.GetFileAddress(table_rva)
	if !mapped {
		return errors.Wrapf(ErrLookupTableUnreachable,
			"%s: lookup table RVA %#x", library.Name, table_rva)
	}
	self.reader.Seek(int64(offset))

	thunk_size := 4
	ordinal_flag := IMAGE_ORDINAL_FLAG32
	if self.Is64Bit {
		thunk_size = 8
		ordinal_flag = IMAGE_ORDINAL_FLAG64
	}

	record := make([]byte, thunk_size)
	for {
		if err := self.reader.ReadFull(record); err != nil {
			return errors.Wrapf(ErrLookupTableUnreachable,
				"%s: %v", library.Name, err)
		}

		var raw_value uint64
		if self.Is64Bit {
			raw_value = binary.LittleEndian.Uint64(record)
		} else {
			raw_value = uint64(binary.LittleEndian.Uint32(record))
		}

		if raw_value == 0 {
			break
		}

		entry := &ImportEntry{RawValue: raw_value}
		if raw_value&ordinal_flag != 0 {
			entry.ByOrdinal = true
			entry.OrdinalOrRVA = raw_value &^ ordinal_flag

		} else {
			// Import by name. For both PE32 and PE32+ the
			// hint/name RVA lives in bits 30-0.
			entry.OrdinalOrRVA = raw_value & 0x7FFFFFFF
			if err := self.resolveHintName(library, entry); err != nil {
				return err
			}
		}

		library.Entries = append(library.Entries, entry)

		if len(library.Entries) > MAX_IMPORT_FUNCTIONS {
			return errors.Wrapf(ErrImportTableTooLarge,
				"%s: more than %d lookup entries with no terminator",
				library.Name, MAX_IMPORT_FUNCTIONS)
		}
	}

	return nil
}

// resolveHintName follows a thunk into the hint/name table. The lookup
// table scan and these side trips share one cursor, so the cursor is
// saved before seeking away and restored before returning.
func (self *PEFile) resolveHintName(library *Library, entry *ImportEntry) error {
	offset, mapped := self.rva_resolver.GetFileAddress(
		uint32(entry.OrdinalOrRVA))
	if !mapped {
		return errors.Wrapf(ErrHintNameTableUnreachable,
			"%s: hint/name RVA %#x", library.Name, entry.OrdinalOrRVA)
	}

	saved_offset := self.reader.Tell()
	self.reader.Seek(int64(offset))

	hint := make([]byte, 2)
	if err := self.reader.ReadFull(hint); err != nil {
		return errors.Wrapf(ErrHintNameUnreadable,
			"%s: %v", library.Name, err)
	}
	entry.Hint = binary.LittleEndian.Uint16(hint)

	name, err := self.reader.ReadTerminatedString(MAX_SYMBOL_NAME_LENGTH)
	if err != nil {
		return errors.Wrapf(ErrHintNameUnreadable,
			"%s: %v", library.Name, err)
	}
	entry.Name = name

	self.reader.Seek(saved_offset)
	return nil
}

// ImpHash computes the import hash over the normalized import list -
// the md5 of "lib.func" pairs in file order, lowercased, with known
// library extensions stripped and ordinal imports rendered as ordN.
// Returns the empty string when there are no imports.
func (self *PEFile) ImpHash() string {
	normalized := []string{}

	for _, library := range self.ImportTable {
		lib_name := strings.ToLower(library.Name)
		for _, extension := range []string{".dll", ".ocx", ".sys"} {
			if strings.HasSuffix(lib_name, extension) {
				lib_name = strings.TrimSuffix(lib_name, extension)
				break
			}
		}

		for _, entry := range library.Entries {
			function_name := strings.ToLower(entry.Name)
			if entry.ByOrdinal {
				function_name = fmt.Sprintf("ord%d", entry.Ordinal())
			}
			normalized = append(normalized, lib_name+"."+function_name)
		}
	}

	if len(normalized) == 0 {
		return ""
	}

	return fmt.Sprintf("%x", md5.Sum([]byte(strings.Join(normalized, ","))))
}

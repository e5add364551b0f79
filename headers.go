package pescan

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	IMAGE_DOS_SIGNATURE           = 0x5a4d
	IMAGE_NT_SIGNATURE            = 0x4550
	IMAGE_NT_OPTIONAL_HDR32_MAGIC = 0x10b
	IMAGE_NT_OPTIONAL_HDR64_MAGIC = 0x20b
)

type FileHeader struct {
	Machine              uint16
	NumberOfSections     uint16
	TimeDateStamp        uint32
	SizeOfOptionalHeader uint16
	Characteristics      uint16
}

type DataDirectory struct {
	VirtualAddress uint32
	Size           uint32
}

type OptionalHeader struct {
	Magic               uint16
	ImageBase           uint64
	NumberOfRvaAndSizes uint32
	DataDirectory       []DataDirectory
}

// All header records are decoded field by field from a fixed byte
// window with declared widths. The file layout is little endian
// regardless of host - nothing here may rely on Go struct layout.
func (self *PEFile) parseHeaders() error {
	self.reader.Seek(0)

	dos_header := make([]byte, 64)
	if err := self.reader.ReadFull(dos_header); err != nil {
		return errors.Wrap(ErrInvalidDosHeader, err.Error())
	}
	if binary.LittleEndian.Uint16(dos_header[0:2]) != IMAGE_DOS_SIGNATURE {
		return ErrInvalidDosHeader
	}
	e_lfanew := int64(binary.LittleEndian.Uint32(dos_header[60:64]))

	// NT signature followed immediately by the COFF file header.
	self.reader.Seek(e_lfanew)
	nt_header := make([]byte, 24)
	if err := self.reader.ReadFull(nt_header); err != nil {
		return errors.Wrap(ErrInvalidNtHeader, err.Error())
	}
	if binary.LittleEndian.Uint32(nt_header[0:4]) != IMAGE_NT_SIGNATURE {
		return ErrInvalidNtHeader
	}

	self.FileHeader = FileHeader{
		Machine:              binary.LittleEndian.Uint16(nt_header[4:6]),
		NumberOfSections:     binary.LittleEndian.Uint16(nt_header[6:8]),
		TimeDateStamp:        binary.LittleEndian.Uint32(nt_header[8:12]),
		SizeOfOptionalHeader: binary.LittleEndian.Uint16(nt_header[20:22]),
		Characteristics:      binary.LittleEndian.Uint16(nt_header[22:24]),
	}
	self.Machine = machineName(self.FileHeader.Machine)

	if err := self.parseOptionalHeader(); err != nil {
		return err
	}

	// The sections start immediately after the optional header -
	// which is where the cursor already is.
	return self.parseSections()
}

func (self *PEFile) parseOptionalHeader() error {
	size := int(self.FileHeader.SizeOfOptionalHeader)
	if size < 2 {
		return errors.Wrap(ErrInvalidOptionalHeader, "optional header missing")
	}

	buff := make([]byte, size)
	if err := self.reader.ReadFull(buff); err != nil {
		return errors.Wrap(ErrInvalidOptionalHeader, err.Error())
	}

	header := OptionalHeader{
		Magic: binary.LittleEndian.Uint16(buff[0:2]),
	}

	// The directory array sits at a different offset for the two
	// header variants, as does the ImageBase field width.
	var directory_base int
	switch header.Magic {
	case IMAGE_NT_OPTIONAL_HDR32_MAGIC:
		if size < 96 {
			return errors.Wrap(ErrInvalidOptionalHeader, "truncated PE32 header")
		}
		header.ImageBase = uint64(binary.LittleEndian.Uint32(buff[28:32]))
		header.NumberOfRvaAndSizes = binary.LittleEndian.Uint32(buff[92:96])
		directory_base = 96

	case IMAGE_NT_OPTIONAL_HDR64_MAGIC:
		if size < 112 {
			return errors.Wrap(ErrInvalidOptionalHeader, "truncated PE32+ header")
		}
		self.Is64Bit = true
		header.ImageBase = binary.LittleEndian.Uint64(buff[24:32])
		header.NumberOfRvaAndSizes = binary.LittleEndian.Uint32(buff[108:112])
		directory_base = 112

	default:
		return errors.Wrapf(ErrInvalidOptionalHeader,
			"unknown magic %#x", header.Magic)
	}

	// Cap the directory count by both the declared limit of 16 and
	// the bytes actually present in the header window.
	count := int(CapUint32(header.NumberOfRvaAndSizes, 16))
	if available := (size - directory_base) / 8; count > available {
		count = available
	}

	for i := 0; i < count; i++ {
		offset := directory_base + i*8
		header.DataDirectory = append(header.DataDirectory, DataDirectory{
			VirtualAddress: binary.LittleEndian.Uint32(buff[offset : offset+4]),
			Size:           binary.LittleEndian.Uint32(buff[offset+4 : offset+8]),
		})
	}

	self.OptionalHeader = header
	return nil
}

func (self *PEFile) parseSections() error {
	number_of_sections := CapUint16(self.FileHeader.NumberOfSections,
		MAX_NUMBER_OF_SECTIONS)

	buff := make([]byte, 40)
	for i := 0; i < int(number_of_sections); i++ {
		if err := self.reader.ReadFull(buff); err != nil {
			return errors.Wrap(ErrInvalidNtHeader, "truncated section table")
		}

		characteristics := binary.LittleEndian.Uint32(buff[36:40])
		self.Sections = append(self.Sections, &Section{
			Name:        string(bytes.TrimRight(buff[0:8], "\x00")),
			Perm:        sectionPermissions(characteristics),
			VirtualSize: int64(binary.LittleEndian.Uint32(buff[8:12])),
			VMA:         int64(binary.LittleEndian.Uint32(buff[12:16])),
			Size:        int64(binary.LittleEndian.Uint32(buff[16:20])),
			FileOffset:  int64(binary.LittleEndian.Uint32(buff[20:24])),
		})
	}

	return nil
}

// DirectoryLocation resolves a data directory index to a starting file
// offset. The bool result is false when the image simply has no such
// directory (a zero RVA, or an index past NumberOfRvaAndSizes) - a
// parse successful case, not an error. No direct offset fallback is
// applied here: directory tables live inside mapped sections, so an
// unmapped directory RVA is treated the same as an absent directory.
func (self *PEFile) DirectoryLocation(index int) (uint32, bool) {
	if index < 0 || index >= len(self.OptionalHeader.DataDirectory) {
		return 0, false
	}

	directory := self.OptionalHeader.DataDirectory[index]
	if directory.VirtualAddress == 0 {
		return 0, false
	}

	offset, mapped := self.rva_resolver.GetFileAddress(directory.VirtualAddress)
	if !mapped {
		self.warn("directory %d RVA %#x is not mapped by any section",
			index, directory.VirtualAddress)
		return 0, false
	}

	return offset, true
}

func sectionPermissions(characteristics uint32) string {
	result := ""
	if characteristics&0x20000000 > 0 {
		result += "x"
	} else {
		result += "-"
	}

	if characteristics&0x40000000 > 0 {
		result += "r"
	} else {
		result += "-"
	}

	if characteristics&0x80000000 > 0 {
		result += "w"
	} else {
		result += "-"
	}

	return result
}

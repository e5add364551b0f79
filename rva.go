package pescan

// An RVA resolver maps a VirtualAddress to a file physical
// address. When the physical file is mapped into memory, sections in
// the file are mapped at different memory addresses. Internally the
// PE file contains pointers to those virtual addresses. This means we
// need to convert these pointers to mapped memory back into the file
// so we can read their data. The RVAResolver is responsible for this
// - it is populated from the header's sections.
type Run struct {
	VirtualAddress  uint32
	VirtualEnd      uint32
	PhysicalAddress uint32
}

type RVAResolver struct {
	// For now very simple O(n) search.
	Runs      []*Run
	ImageBase uint64
	Is64Bit   bool
}

// GetFileAddress translates an RVA to a file offset. The second return
// value reports whether any section maps the RVA - 0 is a perfectly
// valid file offset so it can not double as a failure signal. Policy
// for unmapped RVAs belongs to the caller: the descriptor walker falls
// back to treating an unmapped library name RVA as a raw file offset,
// but thunk tables get no such tolerance.
func (self *RVAResolver) GetFileAddress(rva uint32) (uint32, bool) {
	for _, run := range self.Runs {
		if rva >= run.VirtualAddress &&
			rva < run.VirtualEnd {
			return rva - run.VirtualAddress + run.PhysicalAddress, true
		}
	}

	return 0, false
}

func NewRVAResolver(sections []*Section, image_base uint64, is_64bit bool) *RVAResolver {
	result := &RVAResolver{
		ImageBase: image_base,
		Is64Bit:   is_64bit,
	}

	for _, section := range sections {
		if section.Size == 0 {
			continue
		}

		// Packers routinely declare a virtual size smaller than
		// the raw data; the larger of the two bounds the run.
		virtual_size := section.VirtualSize
		if virtual_size < section.Size {
			virtual_size = section.Size
		}

		run := &Run{
			VirtualAddress:  uint32(section.VMA),
			VirtualEnd:      uint32(section.VMA + virtual_size),
			PhysicalAddress: uint32(section.FileOffset),
		}

		result.Runs = append(result.Runs, run)
	}

	return result
}

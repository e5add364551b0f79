package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Velocidex/ordereddict"
	"github.com/h2non/filetype"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
	"www.velocidex.com/golang/binparsergen/reader"

	pescan "github.com/malworks/pescan"
)

var (
	app               = kingpin.New("pescan", "Static PE import analyzer.")
	info_command      = app.Command("info", "Displays structural info about a PE file.")
	info_command_file = info_command.Arg("file", "").Required().
				OpenFile(os.O_RDONLY, 0600)
)

// openPEFile sniffs the file type, wraps the file in a paged reader
// and runs the parse. The binary is never executed.
func openPEFile(fd *os.File) *pescan.PEFile {
	head := make([]byte, 261)
	n, _ := fd.ReadAt(head, 0)

	kind, _ := filetype.Match(head[:n])
	if kind.Extension != "exe" {
		kingpin.Fatalf("%s does not look like a PE file", fd.Name())
	}

	paged_reader, err := reader.NewPagedReader(fd, 4096, 100)
	kingpin.FatalIfError(err, "Can not open file %s", fd.Name())

	pe_file, err := pescan.NewPEFile(paged_reader)
	kingpin.FatalIfError(err, "Can not parse file %s", fd.Name())

	return pe_file
}

func doInfo() {
	pe_file := openPEFile(*info_command_file)

	result := ordereddict.NewDict().
		Set("Machine", pe_file.Machine).
		Set("Is64Bit", pe_file.Is64Bit).
		Set("Sections", pe_file.Sections).
		Set("Imports", pe_file.ImportsDict()).
		Set("ImpHash", pe_file.ImpHash()).
		Set("Warnings", pe_file.Warnings)

	if err := pe_file.ImportError(); err != nil {
		result.Set("ImportError", err.Error())
	}

	serialized, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(serialized))
}

func main() {
	app.HelpFlag.Short('h')
	app.UsageTemplate(kingpin.CompactUsageTemplate)
	command := kingpin.MustParse(app.Parse(os.Args[1:]))
	switch command {

	case info_command.FullCommand():
		doInfo()

	case imports_command.FullCommand():
		doImports()

	case search_command.FullCommand():
		doSearch()
	}
}

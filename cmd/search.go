package main

import (
	"fmt"
	"os"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
)

var (
	search_command = app.Command("search", "Search imported symbols with regular expressions.")

	search_command_function = search_command.Flag(
		"function", "Pattern the full function name must match.").
		Default(".*").String()

	search_command_library = search_command.Flag(
		"library", "Pattern the full library name must match.").
		Default(".*").String()

	search_command_ignore_case = search_command.Flag(
		"ignore-case", "Match both patterns case insensitively.").
		Short('i').Bool()

	search_command_file = search_command.Arg("file", "").Required().
				OpenFile(os.O_RDONLY, 0600)
)

func doSearch() {
	pe_file := openPEFile(*search_command_file)

	matches, err := pe_file.SearchImports(
		*search_command_function,
		*search_command_library,
		!*search_command_ignore_case)
	kingpin.FatalIfError(err, "Invalid pattern")

	for _, name := range matches {
		fmt.Println(name)
	}
}

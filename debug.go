package pescan

import (
	"fmt"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

var (
	PESCAN_DEBUG *bool
)

func DebugPrint(fmt_str string, v ...interface{}) {
	if PESCAN_DEBUG == nil {
		// os.Environ() seems very expensive in Go so we cache
		// it.
		for _, x := range os.Environ() {
			if strings.HasPrefix(x, "PESCAN_DEBUG=") {
				value := true
				PESCAN_DEBUG = &value
				break
			}
		}
	}

	if PESCAN_DEBUG == nil {
		value := false
		PESCAN_DEBUG = &value
	}

	if *PESCAN_DEBUG {
		fmt.Printf(fmt_str, v...)
	}
}

func Debug(arg interface{}) {
	spew.Dump(arg)
}

package poolfs

import (
	"fmt"
	"regexp"
	"runtime"

	"github.com/poolfs/poolfs/pool"
)

// CurrentCommit is the current git commit, this is set as a ldflag in the Makefile
var CurrentCommit string

// CurrentVersionNumber is the current application's version literal
const CurrentVersionNumber = "0.1.0-dev"

const maxVersionLen = 64

var onlyASCII = regexp.MustCompile("[[:^ascii:]]")

// TrimVersion drops non-ASCII characters and caps the length.
func TrimVersion(version string) string {
	ascii := onlyASCII.ReplaceAllLiteralString(version, "")
	chars := 0
	for i := range ascii {
		if chars >= maxVersionLen {
			ascii = ascii[:i]
			break
		}
		chars++
	}
	return ascii
}

type VersionInfo struct {
	Version   string
	Commit    string
	BlockSize string
	System    string
	Golang    string
}

func GetVersionInfo() *VersionInfo {
	return &VersionInfo{
		Version:   CurrentVersionNumber,
		Commit:    TrimVersion(CurrentCommit),
		BlockSize: fmt.Sprint(pool.BlockSize),
		System:    runtime.GOARCH + "/" + runtime.GOOS,
		Golang:    runtime.Version(),
	}
}
